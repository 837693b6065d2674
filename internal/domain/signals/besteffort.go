package signals

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/segment"
	"github.com/okian/pacer/internal/domain/vdot"
)

const bestEffortTop = 3

// bestEffortGenerator mines ordinary workouts for their strongest
// sustained window, from streams when present and from laps otherwise.
type bestEffortGenerator struct {
	cfg        coeffs.Signal
	lapQuality float64
	seg        coeffs.Segment
	extractor  *segment.Extractor
}

type effort struct {
	index, quality float64
}

func (e effort) score() float64 { return e.index * e.quality }

func (g *bestEffortGenerator) Name() Name { return BestEffort }

func (g *bestEffortGenerator) Generate(ctx context.Context, ev model.Evidence) (*Signal, error) {
	var found []effort
	for _, w := range recent(ev, g.cfg.LookbackDays, nil) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s, ok := ev.Streams[w.ID]; ok {
			if res, err := g.extractor.Find(s); err == nil {
				found = append(found, effort{index: res.Best.FitnessIndex, quality: res.Best.QualityScore})
			}
			continue
		}
		if e, ok := g.bestLap(w); ok {
			found = append(found, e)
		}
	}
	if len(found) < max(1, g.cfg.MinEvidence) {
		return nil, nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].score() > found[j].score() })
	top := found[:min(bestEffortTop, len(found))]
	var sumQ, sumQI float64
	for _, e := range top {
		sumQ += e.quality
		sumQI += e.quality * e.index
	}
	n := float64(len(top))
	return &Signal{
		Name:                  BestEffort,
		EstimatedFitnessIndex: sumQI / sumQ,
		Confidence:            (sumQ / n) * math.Min(1, n/bestEffortTop),
		Weight:                g.cfg.Weight,
		Evidence:              len(top),
		Detail:                fmt.Sprintf("top %d of %d efforts", len(top), len(found)),
	}, nil
}

// bestLap returns the strongest lap that passes the segment gates.
func (g *bestEffortGenerator) bestLap(w model.Workout) (effort, bool) {
	var best effort
	ok := false
	for _, lap := range w.Laps {
		if lap.DistanceMiles < g.seg.MinDistanceMiles || lap.DistanceMiles > g.seg.MaxDistanceMiles {
			continue
		}
		if lap.DurationSeconds < g.seg.MinDuration || lap.DurationSeconds > g.seg.MaxDuration {
			continue
		}
		pace := lap.DurationSeconds / lap.DistanceMiles
		if pace <= g.seg.MinPace || pace > g.seg.MaxPace {
			continue
		}
		idx, err := vdot.ToIndex(lap.DistanceMiles*model.MetersPerMile, lap.DurationSeconds)
		if err != nil || vdot.Validate(idx) != nil {
			continue
		}
		if !ok || idx > best.index {
			best, ok = effort{index: idx, quality: g.lapQuality}, true
		}
	}
	return best, ok
}
