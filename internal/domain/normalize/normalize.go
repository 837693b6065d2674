// Package normalize turns a raw effort into an equivalent maximal effort,
// correcting for heat, climbing and sub-maximal intent.
package normalize

import (
	"fmt"
	"math"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

// NormalizedEffort is the derived view of an Effort.
type NormalizedEffort struct {
	Effort                    model.Effort `json:"effort"`
	EquivalentTimeSeconds     float64      `json:"equivalent_time_seconds"`
	EquivalentFitnessIndex    float64      `json:"equivalent_fitness_index"`
	WeatherAdjustSecPerMile   float64      `json:"weather_adjust_sec_per_mile"`
	ElevationAdjustSecPerMile float64      `json:"elevation_adjust_sec_per_mile"`
	EffortMultiplier          float64      `json:"effort_multiplier"`
	Confidence                types.Tier   `json:"confidence"`
	ConfidenceWeight          float64      `json:"confidence_weight"`
}

// Normalizer applies the adjustments configured in coeffs.Normalizer.
type Normalizer struct {
	c coeffs.Normalizer
}

// New returns a Normalizer using c.
func New(c coeffs.Normalizer) *Normalizer {
	return &Normalizer{c: c}
}

// Normalize derives the equivalent maximal effort. linked, when non-nil,
// supplies weather and elevation the effort itself does not carry.
// The effort is never modified.
func (n *Normalizer) Normalize(e model.Effort, linked *model.Workout) (NormalizedEffort, error) {
	if e.DistanceMeters <= 0 || e.DurationSeconds <= 0 || math.IsNaN(e.DistanceMeters) || math.IsNaN(e.DurationSeconds) {
		return NormalizedEffort{}, fmt.Errorf("normalize: %w", vdot.ErrInvalidEffort)
	}
	level := e.EffortLevel
	if level == "" {
		level = types.EffortAllOut
	}
	if !level.Valid() {
		return NormalizedEffort{}, fmt.Errorf("normalize: %w: %q", ErrUnknownEffortLevel, level)
	}

	temp, humidity, gain := e.WeatherTempF, e.WeatherHumidityPct, e.ElevationGainFt
	if linked != nil {
		temp = firstSet(temp, linked.WeatherTempF)
		humidity = firstSet(humidity, linked.WeatherHumidityPct)
		gain = firstSet(gain, linked.ElevationGainFt)
	}

	miles := e.DistanceMeters / model.MetersPerMile
	raw := e.DurationSeconds
	weather := n.weatherAdjust(temp, humidity)
	elevation := n.elevationAdjust(gain, miles)

	adjusted := math.Max(raw-(weather+elevation)*miles, raw*n.c.AdjustmentFloor)
	mult := n.c.EffortMultipliers[string(level)]
	if mult <= 0 {
		mult = 1
	}
	equivalent := math.Max(adjusted*mult, raw*n.c.OverallFloor)

	idx, err := vdot.ToIndex(e.DistanceMeters, equivalent)
	if err != nil {
		return NormalizedEffort{}, fmt.Errorf("normalize: %w", err)
	}
	if err := vdot.Validate(idx); err != nil {
		return NormalizedEffort{}, fmt.Errorf("normalize: %w", err)
	}

	tier := n.confidence(level, temp == nil, gain == nil)
	return NormalizedEffort{
		Effort:                    e,
		EquivalentTimeSeconds:     equivalent,
		EquivalentFitnessIndex:    idx,
		WeatherAdjustSecPerMile:   weather,
		ElevationAdjustSecPerMile: elevation,
		EffortMultiplier:          mult,
		Confidence:                tier,
		ConfidenceWeight:          n.c.TierWeights[string(tier)],
	}, nil
}

// weatherAdjust returns the heat penalty in seconds per mile.
func (n *Normalizer) weatherAdjust(temp, humidity *float64) float64 {
	w := n.c.Weather
	if temp == nil || *temp <= w.ComfortTempF {
		return 0
	}
	h := w.DefaultHumidityPct
	if humidity != nil {
		h = *humidity
	}
	factor := 1 + math.Max(0, h-w.HumidityPivotPct)/100
	return (*temp - w.ComfortTempF) * w.SecPerMilePerDegree * factor
}

// elevationAdjust returns the climbing penalty in seconds per mile.
func (n *Normalizer) elevationAdjust(gain *float64, miles float64) float64 {
	if gain == nil || *gain <= 0 || miles <= 0 {
		return 0
	}
	return n.c.Elevation.SecPerMilePer100FtPerMile * (*gain / miles) / 100
}

func (n *Normalizer) confidence(level types.EffortLevel, noWeather, noElevation bool) types.Tier {
	score := n.c.EffortConfidence[string(level)]
	if noWeather {
		score -= n.c.MissingContext
	}
	if noElevation {
		score -= n.c.MissingContext
	}
	switch {
	case score >= n.c.HighThreshold:
		return types.TierHigh
	case score >= n.c.MediumThreshold:
		return types.TierMedium
	default:
		return types.TierLow
	}
}

func firstSet(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
