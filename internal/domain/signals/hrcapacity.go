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
	restingCost      = 3.5
	hrMinMinutes     = 20.0
	hrMinReserve     = 0.5
	hrMaxReserve     = 0.95
	hrBaseConfidence = 0.5
	hrPerRun         = 0.03
	hrMaxBonus       = 0.3
	hrCVPenalty      = 2.0
	hrMaxPenalty     = 0.3
)

// hrCapacityGenerator scales the oxygen cost of steady runs by the share
// of heart-rate reserve they used, treating %HRR as %VO2 reserve.
type hrCapacityGenerator struct {
	cfg coeffs.Signal
}

func (g *hrCapacityGenerator) Name() Name { return HRCapacity }

func (g *hrCapacityGenerator) Generate(_ context.Context, ev model.Evidence) (*Signal, error) {
	s := ev.Settings
	if !s.HasHeartRateProfile() {
		return nil, nil
	}
	maxHR := s.EffectiveMaxHR()

	var estimates []float64
	for _, w := range recent(ev, g.cfg.LookbackDays, func(w model.Workout) bool {
		return w.DurationMinutes >= hrMinMinutes && w.AvgHR > 0 && w.DistanceMiles > 0
	}) {
		reserve := (w.AvgHR - s.RestingHR) / (maxHR - s.RestingHR)
		if reserve < hrMinReserve || reserve > hrMaxReserve {
			continue
		}
		cost := vdot.OxygenCost(metersPerMinute(w))
		capacity := restingCost + (cost-restingCost)/reserve
		if vdot.Validate(capacity) == nil {
			estimates = append(estimates, capacity)
		}
	}
	if len(estimates) < max(1, g.cfg.MinEvidence) {
		return nil, nil
	}

	mean, std := meanStd(estimates)
	n := float64(len(estimates))
	conf := hrBaseConfidence + math.Min(hrMaxBonus, hrPerRun*n) - math.Min(hrMaxPenalty, hrCVPenalty*std/mean)
	return &Signal{
		Name:                  HRCapacity,
		EstimatedFitnessIndex: median(estimates),
		Confidence:            clamp(conf, 0.1, 0.9),
		Weight:                g.cfg.Weight,
		Evidence:              len(estimates),
		Detail:                fmt.Sprintf("%d runs, max HR %.0f", len(estimates), maxHR),
	}, nil
}
