package signals

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/normalize"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

const (
	progressionMinMiles  = 2.0
	progressionHeadroom  = 1.0
	progressionBase      = 0.3
	progressionFitShare  = 0.3
	progressionPerRun    = 0.02
	progressionMaxBonus  = 0.2
	progressionMaxResult = 0.8
)

// qualityEffort maps a hard session type onto the effort it implies.
var qualityEffort = map[types.WorkoutType]types.EffortLevel{
	types.WorkoutRace:      types.EffortAllOut,
	types.WorkoutInterval:  types.EffortHard,
	types.WorkoutThreshold: types.EffortHard,
	types.WorkoutTempo:     types.EffortModerate,
}

// progressionGenerator fits a line through the normalized indices of
// recent quality sessions and projects it to the as-of date.
type progressionGenerator struct {
	cfg  coeffs.Signal
	norm *normalize.Normalizer
}

func (g *progressionGenerator) Name() Name { return PaceProgression }

func (g *progressionGenerator) Generate(_ context.Context, ev model.Evidence) (*Signal, error) {
	var xs, ys []float64
	for _, w := range recent(ev, g.cfg.LookbackDays, func(w model.Workout) bool {
		return w.WorkoutType.IsQuality() && w.DistanceMiles >= progressionMinMiles && w.DurationMinutes > 0
	}) {
		e := model.Effort{
			DistanceMeters:  w.DistanceMiles * model.MetersPerMile,
			DurationSeconds: w.DurationSeconds(),
			Date:            w.Date,
			Source:          types.SourceWorkoutSegment,
			EffortLevel:     qualityEffort[w.WorkoutType],
			WorkoutID:       w.ID,
		}
		ne, err := g.norm.Normalize(e, &w)
		if errors.Is(err, vdot.ErrIndexOutOfRange) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("workout %s: %w", w.ID, err)
		}
		xs = append(xs, -model.AgeDays(w.Date, ev.AsOf))
		ys = append(ys, ne.EquivalentFitnessIndex)
	}
	if len(ys) < max(2, g.cfg.MinEvidence) {
		return nil, nil
	}

	intercept, slope, r2 := fitLine(xs, ys)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		lo, hi = math.Min(lo, y), math.Max(hi, y)
	}
	est := clamp(intercept, lo-progressionHeadroom, hi+progressionHeadroom)
	if vdot.Validate(est) != nil {
		return nil, nil
	}

	n := float64(len(ys))
	conf := progressionBase + progressionFitShare*r2 + math.Min(progressionMaxBonus, progressionPerRun*n)
	return &Signal{
		Name:                  PaceProgression,
		EstimatedFitnessIndex: est,
		Confidence:            math.Min(progressionMaxResult, conf),
		Weight:                g.cfg.Weight,
		Evidence:              len(ys),
		Detail:                fmt.Sprintf("%+.2f per week over %d sessions (R²=%.2f)", slope*7, len(ys), r2),
	}, nil
}

// fitLine returns the least-squares intercept at x=0, the slope and R².
// Degenerate inputs fall back to the mean with zero slope.
func fitLine(xs, ys []float64) (float64, float64, float64) {
	mx, _ := meanStd(xs)
	my, _ := meanStd(ys)
	var sxx, sxy, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return my, 0, 0
	}
	slope := sxy / sxx
	r2 := 0.0
	if syy > 0 {
		r2 = sxy * sxy / (sxx * syy)
	}
	return my - slope*mx, slope, r2
}
