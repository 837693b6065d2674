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
	efficiencyRecentDays = 28.0
	efficiencyMaxEffect  = 0.10
	efficiencyBase       = 0.3
	efficiencyPerRun     = 0.02
	efficiencyMaxBonus   = 0.25
)

// efficiencyGenerator moves the stored index by the change in efficiency
// factor (speed per heartbeat) on easy runs between the last four weeks
// and the eight weeks before. Without a stored index it is absent.
type efficiencyGenerator struct {
	cfg coeffs.Signal
}

func (g *efficiencyGenerator) Name() Name { return EfficiencyTrend }

func (g *efficiencyGenerator) Generate(_ context.Context, ev model.Evidence) (*Signal, error) {
	anchor := ev.Settings.StoredFitnessIndex
	if anchor == nil || vdot.Validate(*anchor) != nil {
		return nil, nil
	}

	var recentEF, priorEF []float64
	for _, w := range recent(ev, g.cfg.LookbackDays, func(w model.Workout) bool {
		return w.WorkoutType.IsEasy() && w.AvgHR > 0
	}) {
		v := metersPerMinute(w)
		if v <= 0 {
			continue
		}
		ef := v / w.AvgHR
		if model.AgeDays(w.Date, ev.AsOf) <= efficiencyRecentDays {
			recentEF = append(recentEF, ef)
		} else {
			priorEF = append(priorEF, ef)
		}
	}
	need := max(1, g.cfg.MinEvidence)
	if len(recentEF) < need || len(priorEF) < need {
		return nil, nil
	}

	r, _ := meanStd(recentEF)
	p, _ := meanStd(priorEF)
	effect := clamp(r/p-1, -efficiencyMaxEffect, efficiencyMaxEffect)
	est := vdot.Clamp(*anchor * (1 + effect))
	n := float64(len(recentEF) + len(priorEF))
	return &Signal{
		Name:                  EfficiencyTrend,
		EstimatedFitnessIndex: est,
		Confidence:            efficiencyBase + math.Min(efficiencyMaxBonus, efficiencyPerRun*n),
		Weight:                g.cfg.Weight,
		Evidence:              len(recentEF) + len(priorEF),
		Detail:                fmt.Sprintf("efficiency %+.1f%% vs prior weeks", effect*100),
	}, nil
}
