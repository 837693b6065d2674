package signals

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/normalize"
	"github.com/okian/pacer/internal/domain/vdot"
)

const (
	raceRecencyDays   = 180.0
	raceMaxConfidence = 0.95
	raceConfidencePad = 0.5
)

// raceGenerator blends normalized race results, favoring recent ones.
type raceGenerator struct {
	cfg  coeffs.Signal
	norm *normalize.Normalizer
}

func (g *raceGenerator) Name() Name { return Race }

func (g *raceGenerator) Generate(_ context.Context, ev model.Evidence) (*Signal, error) {
	var sumW, sumWI float64
	var used, rejected int
	for _, r := range ev.Races {
		if r.Date.After(ev.AsOf) {
			continue
		}
		age := model.AgeDays(r.Date, ev.AsOf)
		if age > float64(g.cfg.LookbackDays) {
			continue
		}
		var linked *model.Workout
		if w, ok := ev.WorkoutByID(r.WorkoutID); ok {
			linked = &w
		}
		ne, err := g.norm.Normalize(model.EffortFromRace(r), linked)
		if errors.Is(err, vdot.ErrIndexOutOfRange) {
			rejected++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("race %s: %w", r.ID, err)
		}
		w := math.Exp(-age/raceRecencyDays) * ne.ConfidenceWeight
		sumW += w
		sumWI += w * ne.EquivalentFitnessIndex
		used++
	}
	if used < max(1, g.cfg.MinEvidence) || sumW <= 0 {
		return nil, nil
	}

	return &Signal{
		Name:                  Race,
		EstimatedFitnessIndex: sumWI / sumW,
		Confidence:            math.Min(raceMaxConfidence, sumW/(sumW+raceConfidencePad)),
		Weight:                g.cfg.Weight,
		Evidence:              used,
		Detail:                fmt.Sprintf("%d races, %d out of range", used, rejected),
	}, nil
}
