package model

import (
	"time"

	"github.com/okian/pacer/internal/domain/types"
)

// Effort is one performance to be converted into a fitness index.
type Effort struct {
	DistanceMeters     float64            `json:"distance_meters"`
	DurationSeconds    float64            `json:"duration_seconds"`
	Date               time.Time          `json:"date"`
	Source             types.EffortSource `json:"source"`
	EffortLevel        types.EffortLevel  `json:"effort_level"`
	WeatherTempF       *float64           `json:"weather_temp_f,omitempty"`
	WeatherHumidityPct *float64           `json:"weather_humidity_pct,omitempty"`
	ElevationGainFt    *float64           `json:"elevation_gain_ft,omitempty"`
	WorkoutID          string             `json:"workout_id,omitempty"`
}

// EffortFromRace builds the Effort described by a race result.
func EffortFromRace(r RaceResult) Effort {
	src := types.SourceRace
	if r.TimeTrial {
		src = types.SourceTimeTrial
	}
	return Effort{
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.FinishTimeSeconds,
		Date:            r.Date,
		Source:          src,
		EffortLevel:     r.EffortLevel,
		WorkoutID:       r.WorkoutID,
	}
}
