// Package model contains the records the engine consumes from its
// collaborators and the value objects it hands back.
package model

import (
	"time"

	"github.com/okian/pacer/internal/domain/types"
)

// MetersPerMile converts statute miles to meters.
const MetersPerMile = 1609.344

// Lap is one split recorded by a device.
type Lap struct {
	DistanceMiles   float64 `json:"distance_miles" validate:"gte=0"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0"`
	AvgHR           float64 `json:"avg_hr,omitempty" validate:"gte=0"`
}

// Workout is one logged training session.
type Workout struct {
	ID                   string            `json:"id"`
	AthleteID            string            `json:"athlete_id"`
	Date                 time.Time         `json:"date" validate:"required"`
	DistanceMiles        float64           `json:"distance_miles" validate:"gte=0"`
	DurationMinutes      float64           `json:"duration_minutes" validate:"gt=0"`
	AvgPaceSeconds       float64           `json:"avg_pace_seconds,omitempty" validate:"gte=0"`
	AvgHR                float64           `json:"avg_hr,omitempty" validate:"gte=0"`
	MaxHR                float64           `json:"max_hr,omitempty" validate:"gte=0"`
	WorkoutType          types.WorkoutType `json:"workout_type" validate:"omitempty,oneof=recovery easy long steady tempo threshold interval race cross other"`
	ElevationGainFt      *float64          `json:"elevation_gain_ft,omitempty"`
	WeatherTempF         *float64          `json:"weather_temp_f,omitempty"`
	WeatherHumidityPct   *float64          `json:"weather_humidity_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
	TRIMP                *float64          `json:"trimp,omitempty"`
	ExcludeFromEstimates bool              `json:"exclude_from_estimates,omitempty"`
	Laps                 []Lap             `json:"laps,omitempty" validate:"dive"`
}

// PaceSecondsPerMile returns the recorded average pace, deriving it from
// distance and duration when the device did not supply one.
func (w Workout) PaceSecondsPerMile() float64 {
	if w.AvgPaceSeconds > 0 {
		return w.AvgPaceSeconds
	}
	if w.DistanceMiles <= 0 || w.DurationMinutes <= 0 {
		return 0
	}
	return w.DurationMinutes * 60 / w.DistanceMiles
}

// DurationSeconds returns the session length in seconds.
func (w Workout) DurationSeconds() float64 { return w.DurationMinutes * 60 }

// RaceResult is a self-reported race or time trial.
type RaceResult struct {
	ID                string            `json:"id"`
	AthleteID         string            `json:"athlete_id"`
	Date              time.Time         `json:"date" validate:"required"`
	DistanceMeters    float64           `json:"distance_meters" validate:"gt=0"`
	FinishTimeSeconds float64           `json:"finish_time_seconds" validate:"gt=0"`
	EffortLevel       types.EffortLevel `json:"effort_level" validate:"omitempty,oneof=all_out hard moderate easy"`
	TimeTrial         bool              `json:"time_trial,omitempty"`
	WorkoutID         string            `json:"workout_id,omitempty"`
}

// Stream holds parallel samples recorded during one workout.
type Stream struct {
	WorkoutID     string    `json:"workout_id"`
	DistanceMiles []float64 `json:"distance_miles" validate:"required"`
	TimeSeconds   []float64 `json:"time_seconds" validate:"required"`
	HeartRate     []float64 `json:"heart_rate"`
}

// Len returns the number of samples in the shortest required series.
func (s Stream) Len() int {
	if len(s.DistanceMiles) < len(s.TimeSeconds) {
		return len(s.DistanceMiles)
	}
	return len(s.TimeSeconds)
}

// AthleteSettings carries the physiological settings of one athlete.
type AthleteSettings struct {
	AthleteID          string       `json:"athlete_id"`
	RestingHR          float64      `json:"resting_hr,omitempty" validate:"gte=0,lte=120"`
	MaxHR              float64      `json:"max_hr,omitempty" validate:"gte=0,lte=240"`
	Age                int          `json:"age,omitempty" validate:"gte=0,lte=110"`
	Gender             types.Gender `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	StoredFitnessIndex *float64     `json:"stored_fitness_index,omitempty" validate:"omitempty,gte=15,lte=85"`
}

// EffectiveMaxHR returns the configured max HR, or the Tanaka estimate
// (208 − 0.7·age) when only age is known. Zero means unknown.
func (s AthleteSettings) EffectiveMaxHR() float64 {
	if s.MaxHR > 0 {
		return s.MaxHR
	}
	if s.Age > 0 {
		return 208 - 0.7*float64(s.Age)
	}
	return 0
}

// HasHeartRateProfile reports whether heart-rate reserve can be computed.
func (s AthleteSettings) HasHeartRateProfile() bool {
	maxHR := s.EffectiveMaxHR()
	return s.RestingHR > 0 && maxHR > s.RestingHR
}
