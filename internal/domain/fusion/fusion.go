// Package fusion blends independent fitness signals into one estimate with
// an agreement score, a confidence tier and race predictions.
package fusion

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/signals"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

// bandFactor widens the prediction band as confidence drops.
var bandFactor = map[types.Tier]float64{
	types.TierHigh:   1.0,
	types.TierMedium: 1.5,
	types.TierLow:    2.0,
}

// RacePrediction is the forecast for one distance. Fast and Slow bound
// the forecast by the index uncertainty band.
type RacePrediction struct {
	Distance           string  `json:"distance"`
	Meters             float64 `json:"meters"`
	TimeSeconds        float64 `json:"time_seconds"`
	FastSeconds        float64 `json:"fast_seconds"`
	SlowSeconds        float64 `json:"slow_seconds"`
	PaceSecondsPerMile float64 `json:"pace_seconds_per_mile"`
}

// DataQuality summarizes which signals took part.
type DataQuality struct {
	SignalsUsed   int            `json:"signals_used"`
	SignalsFailed []signals.Name `json:"signals_failed,omitempty"`
	SignalsAbsent []signals.Name `json:"signals_absent,omitempty"`
}

// MultiSignalPrediction is the fused estimate.
type MultiSignalPrediction struct {
	AsOf                time.Time        `json:"as_of"`
	BlendedFitnessIndex float64          `json:"blended_fitness_index"`
	Label               string           `json:"label"`
	Confidence          types.Tier       `json:"confidence"`
	AgreementScore      float64          `json:"agreement_score"`
	Spread              float64          `json:"spread"`
	BandIndexPoints     float64          `json:"band_index_points"`
	Predictions         []RacePrediction `json:"predictions"`
	Signals             []signals.Signal `json:"signals"`
	DataQuality         DataQuality      `json:"data_quality"`
}

// Fuser combines signals using coeffs.Fusion.
type Fuser struct {
	c coeffs.Fusion
}

// New returns a Fuser using c.
func New(c coeffs.Fusion) *Fuser {
	return &Fuser{c: c}
}

// Fuse blends out.Signals. It returns ErrNoSignals when none are usable
// and vdot.ErrIndexOutOfRange when the blend leaves the valid domain.
func (f *Fuser) Fuse(out signals.Outcome, asOf time.Time) (*MultiSignalPrediction, error) {
	var sumW, sumWI, sumTrust, sumTrustConf float64
	var idx []float64
	for _, s := range out.Signals {
		w := s.Confidence * s.Weight
		if w <= 0 {
			continue
		}
		sumW += w
		sumWI += w * s.EstimatedFitnessIndex
		sumTrust += s.Weight
		sumTrustConf += s.Weight * s.Confidence
		idx = append(idx, s.EstimatedFitnessIndex)
	}
	if len(idx) == 0 {
		return nil, ErrNoSignals
	}

	blended := sumWI / sumW
	if err := vdot.Validate(blended); err != nil {
		return nil, fmt.Errorf("fuse: %w", err)
	}

	spread := stdDev(idx)
	agreement := 1.0
	if len(idx) > 1 {
		agreement = math.Exp(-spread / f.c.AgreementScale)
	}
	tier := f.tier(len(idx), sumTrustConf/sumTrust, agreement)
	band := math.Max(f.c.MinBand, math.Min(f.c.MaxBand, spread)) * bandFactor[tier]

	preds, err := predictions(blended, band)
	if err != nil {
		return nil, err
	}
	return &MultiSignalPrediction{
		AsOf:                asOf,
		BlendedFitnessIndex: blended,
		Label:               vdot.Label(blended),
		Confidence:          tier,
		AgreementScore:      agreement,
		Spread:              spread,
		BandIndexPoints:     band,
		Predictions:         preds,
		Signals:             out.Signals,
		DataQuality: DataQuality{
			SignalsUsed:   len(idx),
			SignalsFailed: out.Failed,
			SignalsAbsent: out.Absent,
		},
	}, nil
}

// tier grades the blend. Fewer than two signals is always low, and poor
// agreement costs one tier.
func (f *Fuser) tier(n int, meanConf, agreement float64) types.Tier {
	if n < 2 {
		return types.TierLow
	}
	score := f.c.ConfidenceShare*meanConf + (1-f.c.ConfidenceShare)*agreement
	t := types.TierLow
	switch {
	case score >= f.c.HighScore && n >= f.c.HighMinSignals:
		t = types.TierHigh
	case score >= f.c.MediumScore:
		t = types.TierMedium
	}
	if agreement < f.c.LowAgreement {
		t = t.Down()
	}
	return t
}

func predictions(index, band float64) ([]RacePrediction, error) {
	out := make([]RacePrediction, 0, len(vdot.StandardDistances))
	for _, d := range vdot.StandardDistances {
		t, err := vdot.ToTime(index, d.Meters)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", d.Name, err)
		}
		fast, err := vdot.ToTime(vdot.Clamp(index+band), d.Meters)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", d.Name, err)
		}
		slow, err := vdot.ToTime(vdot.Clamp(index-band), d.Meters)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", d.Name, err)
		}
		out = append(out, RacePrediction{
			Distance:           d.Name,
			Meters:             d.Meters,
			TimeSeconds:        t,
			FastSeconds:        fast,
			SlowSeconds:        slow,
			PaceSecondsPerMile: t / (d.Meters / model.MetersPerMile),
		})
	}
	return out, nil
}

func stdDev(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}
