package load

import (
	"math"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
)

// StressMethod names the rule a stress score was derived with.
type StressMethod string

// Stress derivation methods, in order of preference.
const (
	MethodRecorded  StressMethod = "recorded_trimp"
	MethodHeartRate StressMethod = "heart_rate_trimp"
	MethodPace      StressMethod = "pace"
	MethodType      StressMethod = "workout_type"
)

// WorkoutStress scores one workout. A precomputed TRIMP wins, then a
// heart-rate TRIMP, then a pace-based score against thresholdPace
// (seconds per mile, zero when unknown), and finally a per-minute factor
// for the workout type.
func (m *Model) WorkoutStress(w model.Workout, s model.AthleteSettings, thresholdPace float64) (float64, StressMethod) {
	minutes := w.DurationMinutes
	if minutes <= 0 {
		return 0, MethodType
	}
	if w.TRIMP != nil && *w.TRIMP >= 0 {
		return *w.TRIMP, MethodRecorded
	}

	if w.AvgHR > 0 && s.HasHeartRateProfile() {
		maxHR := s.EffectiveMaxHR()
		hrr := clamp((w.AvgHR-s.RestingHR)/(maxHR-s.RestingHR), 0, 1)
		b := m.c.TRIMPMaleB
		if s.Gender == types.GenderFemale {
			b = m.c.TRIMPFemaleB
		}
		return minutes * hrr * m.c.TRIMPFactor * math.Exp(b*hrr), MethodHeartRate
	}

	if pace := w.PaceSecondsPerMile(); thresholdPace > 0 && pace > 0 {
		intensity := clamp(thresholdPace/pace, m.c.IntensityMin, m.c.IntensityMax)
		return minutes * m.c.PaceLoadPerMinute * intensity * intensity, MethodPace
	}

	factor, ok := m.c.TypeFactors[string(w.WorkoutType)]
	if !ok {
		factor = m.c.TypeFactors[string(types.WorkoutOther)]
	}
	if factor <= 0 {
		factor = 1
	}
	return minutes * factor, MethodType
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
