// Package types contains enumerations shared across the engine packages.
package types

// Tier is a coarse confidence label.
type Tier string

// Confidence tiers.
const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh:
		return true
	}
	return false
}

// Down returns the next lower tier; low stays low.
func (t Tier) Down() Tier {
	switch t {
	case TierHigh:
		return TierMedium
	default:
		return TierLow
	}
}

// EffortLevel describes how hard an effort was run.
type EffortLevel string

// Effort levels.
const (
	EffortAllOut   EffortLevel = "all_out"
	EffortHard     EffortLevel = "hard"
	EffortModerate EffortLevel = "moderate"
	EffortEasy     EffortLevel = "easy"
)

// Valid reports whether e is a known effort level.
func (e EffortLevel) Valid() bool {
	switch e {
	case EffortAllOut, EffortHard, EffortModerate, EffortEasy:
		return true
	}
	return false
}

// EffortSource tells where an effort came from.
type EffortSource string

// Effort sources.
const (
	SourceRace           EffortSource = "race"
	SourceTimeTrial      EffortSource = "time_trial"
	SourceWorkoutSegment EffortSource = "workout_segment"
)

// WorkoutType classifies a training session.
type WorkoutType string

// Workout types.
const (
	WorkoutRecovery  WorkoutType = "recovery"
	WorkoutEasy      WorkoutType = "easy"
	WorkoutLong      WorkoutType = "long"
	WorkoutSteady    WorkoutType = "steady"
	WorkoutTempo     WorkoutType = "tempo"
	WorkoutThreshold WorkoutType = "threshold"
	WorkoutInterval  WorkoutType = "interval"
	WorkoutRace      WorkoutType = "race"
	WorkoutCross     WorkoutType = "cross"
	WorkoutOther     WorkoutType = "other"
)

// IsEasy reports whether the session is an aerobic, conversational run.
func (w WorkoutType) IsEasy() bool {
	return w == WorkoutEasy || w == WorkoutRecovery || w == WorkoutLong
}

// IsQuality reports whether the session is a sustained hard effort.
func (w WorkoutType) IsQuality() bool {
	switch w {
	case WorkoutTempo, WorkoutThreshold, WorkoutInterval, WorkoutRace:
		return true
	}
	return false
}

// RiskTier classifies the chronic-load ramp rate.
type RiskTier string

// Ramp-rate risk tiers.
const (
	RiskSafe    RiskTier = "safe"
	RiskCaution RiskTier = "caution"
	RiskHigh    RiskTier = "high"
)

// Gender selects the TRIMP weighting coefficient.
type Gender string

// Genders understood by the load model.
const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)
