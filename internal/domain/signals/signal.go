// Package signals holds the independent fitness estimators. Each generator
// reads one evidence class and yields at most one Signal; a generator
// without enough evidence returns nil rather than a padded guess.
package signals

import (
	"context"
	"math"
	"sort"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/normalize"
	"github.com/okian/pacer/internal/domain/segment"
)

// Name identifies a signal.
type Name string

// Signal names, in fusion display order.
const (
	Race            Name = "race"
	BestEffort      Name = "best_effort"
	HRCapacity      Name = "hr_capacity"
	EfficiencyTrend Name = "efficiency_trend"
	PaceProgression Name = "pace_progression"
	TrainingPace    Name = "training_pace"
)

// Order lists every signal name.
var Order = []Name{Race, BestEffort, HRCapacity, EfficiencyTrend, PaceProgression, TrainingPace}

// Signal is one independent fitness estimate.
type Signal struct {
	Name                  Name    `json:"name"`
	EstimatedFitnessIndex float64 `json:"estimated_fitness_index"`
	Confidence            float64 `json:"confidence"`
	Weight                float64 `json:"weight"`
	Evidence              int     `json:"evidence"`
	Detail                string  `json:"detail,omitempty"`
}

// Generator produces one signal from the evidence. It returns (nil, nil)
// when its evidence class is empty.
type Generator interface {
	Name() Name
	Generate(ctx context.Context, ev model.Evidence) (*Signal, error)
}

// Defaults builds the six generators from c.
func Defaults(c coeffs.Coefficients) []Generator {
	norm := normalize.New(c.Normalizer)
	return []Generator{
		&raceGenerator{cfg: c.Signals.Race, norm: norm},
		&bestEffortGenerator{cfg: c.Signals.BestEffort, lapQuality: c.Signals.LapQuality, seg: c.Segment, extractor: segment.New(c.Segment)},
		&hrCapacityGenerator{cfg: c.Signals.HRCapacity},
		&efficiencyGenerator{cfg: c.Signals.EfficiencyTrend},
		&progressionGenerator{cfg: c.Signals.PaceProgression, norm: norm},
		&trainingPaceGenerator{cfg: c.Signals.TrainingPace, easyFraction: c.Signals.EasyFraction},
	}
}

// recent returns the usable workouts dated within lookback days of ev.AsOf.
func recent(ev model.Evidence, lookback int, keep func(model.Workout) bool) []model.Workout {
	var out []model.Workout
	for _, w := range ev.Workouts {
		if w.ExcludeFromEstimates || w.Date.After(ev.AsOf) {
			continue
		}
		if model.AgeDays(w.Date, ev.AsOf) > float64(lookback) {
			continue
		}
		if keep == nil || keep(w) {
			out = append(out, w)
		}
	}
	return out
}

// metersPerMinute returns the average speed of w.
func metersPerMinute(w model.Workout) float64 {
	pace := w.PaceSecondsPerMile()
	if pace <= 0 {
		return 0
	}
	return model.MetersPerMile / pace * 60
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
