package signals

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/vdot"
)

const (
	trainingPaceBase     = 0.35
	trainingPacePerRun   = 0.01
	trainingPaceMaxBonus = 0.15
)

// trainingPaceGenerator assumes easy running sits at a fixed share of
// capacity and inverts that share.
type trainingPaceGenerator struct {
	cfg          coeffs.Signal
	easyFraction float64
}

func (g *trainingPaceGenerator) Name() Name { return TrainingPace }

func (g *trainingPaceGenerator) Generate(_ context.Context, ev model.Evidence) (*Signal, error) {
	if g.easyFraction <= 0 {
		return nil, nil
	}
	var estimates []float64
	for _, w := range recent(ev, g.cfg.LookbackDays, func(w model.Workout) bool {
		return w.WorkoutType.IsEasy()
	}) {
		v := metersPerMinute(w)
		if v <= 0 {
			continue
		}
		if idx := vdot.OxygenCost(v) / g.easyFraction; vdot.Validate(idx) == nil {
			estimates = append(estimates, idx)
		}
	}
	if len(estimates) < max(1, g.cfg.MinEvidence) {
		return nil, nil
	}

	n := float64(len(estimates))
	return &Signal{
		Name:                  TrainingPace,
		EstimatedFitnessIndex: median(estimates),
		Confidence:            trainingPaceBase + math.Min(trainingPaceMaxBonus, trainingPacePerRun*n),
		Weight:                g.cfg.Weight,
		Evidence:              len(estimates),
		Detail:                fmt.Sprintf("median of %d easy runs", len(estimates)),
	}, nil
}
