// Package baseline moves an athlete's stored fitness index toward a newly
// fused estimate. Improvements are accepted faster than declines so one
// off day cannot drag the baseline down.
package baseline

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

// Direction of a baseline change.
type Direction string

// Directions.
const (
	DirectionInitial   Direction = "initial"
	DirectionImprove   Direction = "improve"
	DirectionDecline   Direction = "decline"
	DirectionUnchanged Direction = "unchanged"
)

// Decision is the result of one update. Prior is nil when the athlete had
// no stored baseline.
type Decision struct {
	Value      float64    `json:"value"`
	Prior      *float64   `json:"prior,omitempty"`
	Fused      float64    `json:"fused"`
	Delta      float64    `json:"delta"`
	Fraction   float64    `json:"fraction"`
	Direction  Direction  `json:"direction"`
	Confidence types.Tier `json:"confidence"`
	Source     string     `json:"source"`
	Rationale  string     `json:"rationale"`
}

// Policy applies the asymmetric smoothing rule.
type Policy struct {
	c coeffs.Baseline
}

// New returns a Policy using c.
func New(c coeffs.Baseline) *Policy { return &Policy{c: c} }

// Update computes the new baseline from prior and fused. With raw set the
// fused value is adopted unchanged.
func (p *Policy) Update(prior *float64, fused float64, tier types.Tier, raw bool) (Decision, error) {
	if err := vdot.Validate(fused); err != nil {
		return Decision{}, err
	}
	d := Decision{Fused: fused, Confidence: tier}

	if prior == nil || raw {
		d.Value = fused
		d.Fraction = 1
		d.Direction = DirectionInitial
		d.Source = model.HistorySourceInitial
		d.Rationale = fmt.Sprintf("adopted %.2f directly", fused)
		if prior != nil {
			pv := *prior
			d.Prior = &pv
			d.Delta = fused - pv
			d.Direction = direction(d.Delta)
			d.Source = model.HistorySourceRecalculation
			d.Rationale = fmt.Sprintf("raw recalculation %.2f -> %.2f", pv, fused)
		}
		return d, nil
	}

	pv := *prior
	d.Prior = &pv
	d.Delta = fused - pv
	d.Direction = direction(d.Delta)
	d.Source = model.HistorySourceSmoothed

	var (
		frac float64
		ok   bool
	)
	switch d.Direction {
	case DirectionImprove:
		frac, ok = p.c.Improve[string(tier)]
	case DirectionDecline:
		frac, ok = p.c.Decline[string(tier)]
	default:
		d.Value = pv
		d.Rationale = fmt.Sprintf("fused estimate equals baseline %.2f", pv)
		return d, nil
	}
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	d.Fraction = frac
	d.Value = vdot.Clamp(pv + d.Delta*frac)
	d.Rationale = fmt.Sprintf("%s %.2f -> %.2f accepting %.0f%% of %+.2f at %s confidence",
		d.Direction, pv, d.Value, frac*100, d.Delta, tier)
	return d, nil
}

// Entry returns the history row recording d for the month containing asOf.
func (d Decision) Entry(athleteID string, asOf time.Time) model.VdotHistoryEntry {
	return model.VdotHistoryEntry{
		ID:           uuid.NewString(),
		AthleteID:    athleteID,
		Date:         model.MonthStart(asOf),
		FitnessIndex: round2(d.Value),
		Source:       d.Source,
		Confidence:   d.Confidence,
		Notes:        d.Rationale,
	}
}

func direction(delta float64) Direction {
	switch {
	case delta > 0:
		return DirectionImprove
	case delta < 0:
		return DirectionDecline
	}
	return DirectionUnchanged
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
