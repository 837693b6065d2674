// Package segment searches a workout's raw stream for the sub-window that
// best evidences current fitness.
//
// Windows are (start, end) index pairs into the caller's read-only arrays;
// nothing is copied per candidate.
package segment

import (
	"fmt"
	"math"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

// Quality model constants.
const (
	maxSampleGapSeconds = 3.0
	maxSpeedMilesPerSec = 0.02
	gapDivisor          = 10.0
	minGapAllowance     = 2.0

	minPlausibleHR    = 60.0
	maxPlausibleHR    = 220.0
	minHRSamples      = 6
	minHRShare        = 0.35
	fallbackStability = 0.55
	fallbackPlausible = 0.6
	cvPenalty         = 2.8
	driftDivisor      = 55.0
	raceBandLow       = 100.0
	raceBandHigh      = 198.0
	raceBandLowSlack  = 40.0
	raceBandHighSlack = 20.0

	gpsShare       = 0.5
	stabilityShare = 0.35
	plausibleShare = 0.15

	highQuality   = 0.8
	mediumQuality = 0.62
)

// Candidate is one scored window.
type Candidate struct {
	StartIndex         int        `json:"start_index"`
	EndIndex           int        `json:"end_index"`
	StartSeconds       float64    `json:"start_seconds"`
	EndSeconds         float64    `json:"end_seconds"`
	DistanceMiles      float64    `json:"distance_miles"`
	DurationSeconds    float64    `json:"duration_seconds"`
	PaceSecondsPerMile float64    `json:"pace_seconds_per_mile"`
	FitnessIndex       float64    `json:"fitness_index"`
	QualityScore       float64    `json:"quality_score"`
	Score              float64    `json:"score"`
	Confidence         types.Tier `json:"confidence"`
	GPSGapCount        int        `json:"gps_gap_count"`
	GPSIntegrity       float64    `json:"gps_integrity"`
	HRDriftPct         float64    `json:"hr_drift_pct"`
	HRStdDev           float64    `json:"hr_std_dev"`
	HRStability        float64    `json:"hr_stability"`
	HRPlausibility     float64    `json:"hr_plausibility"`
}

// Result is the outcome of a full search.
type Result struct {
	Best             Candidate `json:"best"`
	WindowsEvaluated int       `json:"windows_evaluated"`
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithDistanceBounds overrides the window distance bounds in miles.
func WithDistanceBounds(minMiles, maxMiles float64) Option {
	return func(x *Extractor) {
		if minMiles > 0 && maxMiles > minMiles {
			x.c.MinDistanceMiles = minMiles
			x.c.MaxDistanceMiles = maxMiles
		}
	}
}

// Extractor runs the best-segment search.
type Extractor struct {
	c coeffs.Segment
}

// New returns an Extractor using c.
func New(c coeffs.Segment, opts ...Option) *Extractor {
	x := &Extractor{c: c}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// rejections counts why windows were dropped, for the failure diagnostic.
type rejections struct {
	duration, pace, gps, quality, index int
}

func (r rejections) String() string {
	return fmt.Sprintf("duration=%d pace=%d gps=%d quality=%d index=%d",
		r.duration, r.pace, r.gps, r.quality, r.index)
}

// Find returns the highest-scoring window of s. A failure wraps
// ErrInsufficientPoints, ErrMismatchedStreams or ErrNoQualifyingWindow.
func (x *Extractor) Find(s model.Stream) (Result, error) {
	if err := check(s); err != nil {
		return Result{}, err
	}
	n := len(s.DistanceMiles)
	if n < x.c.MinSpan+1 {
		return Result{}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientPoints, n, x.c.MinSpan+1)
	}

	sc := newScan(s)
	var (
		res   Result
		found bool
		rej   rejections
	)
	for start := 0; start < n; start += x.c.StartStep {
		for end := start + x.c.MinSpan; end < n; end += x.c.EndStep {
			dist := s.DistanceMiles[end] - s.DistanceMiles[start]
			if dist > x.c.MaxDistanceMiles {
				break
			}
			if dist < x.c.MinDistanceMiles {
				continue
			}
			res.WindowsEvaluated++
			c, reason := x.evaluate(sc, start, end)
			if reason != nil {
				rej.count(reason)
				continue
			}
			if !found || c.Score > res.Best.Score {
				res.Best, found = c, true
			}
		}
	}

	if !found {
		return res, fmt.Errorf("%w: %d windows evaluated (%s)", ErrNoQualifyingWindow, res.WindowsEvaluated, rej)
	}
	return res, nil
}

// ScoreWindow scores the single window [start, end]. A rejected window is
// returned with the fields computed before the failing gate together with
// an error wrapping ErrWindowRejected.
func (x *Extractor) ScoreWindow(s model.Stream, start, end int) (Candidate, error) {
	if err := check(s); err != nil {
		return Candidate{}, err
	}
	if start < 0 || end >= len(s.DistanceMiles) || end-start < 1 {
		return Candidate{}, fmt.Errorf("%w: window [%d, %d] of %d samples", ErrInsufficientPoints, start, end, len(s.DistanceMiles))
	}
	c, reason := x.evaluate(newScan(s), start, end)
	if reason != nil {
		return c, reason
	}
	return c, nil
}

func check(s model.Stream) error {
	n := len(s.DistanceMiles)
	if len(s.TimeSeconds) != n || (len(s.HeartRate) != 0 && len(s.HeartRate) != n) {
		return fmt.Errorf("%w: distance=%d time=%d hr=%d",
			ErrMismatchedStreams, n, len(s.TimeSeconds), len(s.HeartRate))
	}
	return nil
}

// scan holds prefix sums over one stream so every window is scored in
// constant time.
type scan struct {
	s model.Stream
	// gaps[i] counts gap events on the intervals ending at samples 1..i.
	gaps []int
	// plausible[i] counts plausible HR samples among samples 0..i-1.
	plausible []int
	// hrSum and hrSq are prefix sums over plausible HR samples in order.
	hrSum []float64
	hrSq  []float64
}

func newScan(s model.Stream) *scan {
	n := len(s.DistanceMiles)
	sc := &scan{
		s:         s,
		gaps:      make([]int, n),
		plausible: make([]int, n+1),
		hrSum:     []float64{0},
		hrSq:      []float64{0},
	}
	for i := 1; i < n; i++ {
		sc.gaps[i] = sc.gaps[i-1]
		if isGap(s.TimeSeconds[i]-s.TimeSeconds[i-1], s.DistanceMiles[i]-s.DistanceMiles[i-1]) {
			sc.gaps[i]++
		}
	}
	for i := range n {
		sc.plausible[i+1] = sc.plausible[i]
		if len(s.HeartRate) == 0 {
			continue
		}
		if hr := s.HeartRate[i]; plausible(hr) {
			sc.plausible[i+1]++
			last := len(sc.hrSum) - 1
			sc.hrSum = append(sc.hrSum, sc.hrSum[last]+hr)
			sc.hrSq = append(sc.hrSq, sc.hrSq[last]+hr*hr)
		}
	}
	return sc
}

func isGap(dt, dd float64) bool {
	switch {
	case dt > maxSampleGapSeconds, dd < 0:
		return true
	case dt <= 0:
		return dd > 0
	default:
		return dd/dt > maxSpeedMilesPerSec
	}
}

type gate string

const (
	gateDuration gate = "duration"
	gatePace     gate = "pace"
	gateGPS      gate = "gps"
	gateQuality  gate = "quality"
	gateIndex    gate = "index"
)

type rejectedError struct {
	gate   gate
	detail string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("%s: %s gate: %s", ErrWindowRejected, e.gate, e.detail)
}

func (e *rejectedError) Unwrap() error { return ErrWindowRejected }

func reject(g gate, format string, args ...any) *rejectedError {
	return &rejectedError{gate: g, detail: fmt.Sprintf(format, args...)}
}

func (r *rejections) count(err *rejectedError) {
	switch err.gate {
	case gateDuration:
		r.duration++
	case gatePace:
		r.pace++
	case gateGPS:
		r.gps++
	case gateQuality:
		r.quality++
	case gateIndex:
		r.index++
	}
}

// evaluate applies every gate to [start, end] in order.
func (x *Extractor) evaluate(sc *scan, start, end int) (Candidate, *rejectedError) {
	s := sc.s
	c := Candidate{
		StartIndex:    start,
		EndIndex:      end,
		StartSeconds:  s.TimeSeconds[start],
		EndSeconds:    s.TimeSeconds[end],
		DistanceMiles: s.DistanceMiles[end] - s.DistanceMiles[start],
	}
	c.DurationSeconds = c.EndSeconds - c.StartSeconds
	if c.DurationSeconds < x.c.MinDuration || c.DurationSeconds > x.c.MaxDuration {
		return c, reject(gateDuration, "%.0fs", c.DurationSeconds)
	}
	if c.DistanceMiles <= 0 {
		return c, reject(gatePace, "no distance covered")
	}
	c.PaceSecondsPerMile = c.DurationSeconds / c.DistanceMiles
	if c.PaceSecondsPerMile <= x.c.MinPace || c.PaceSecondsPerMile > x.c.MaxPace {
		return c, reject(gatePace, "%.0fs/mi", c.PaceSecondsPerMile)
	}

	c.GPSGapCount, c.GPSIntegrity = sc.gpsIntegrity(start, end)
	if c.GPSIntegrity < x.c.MinGPSIntegrity {
		return c, reject(gateGPS, "integrity %.2f with %d gaps", c.GPSIntegrity, c.GPSGapCount)
	}

	hr := sc.heartRate(start, end)
	c.HRDriftPct, c.HRStdDev, c.HRStability, c.HRPlausibility = hr.driftPct, hr.std, hr.stability, hr.plausibility
	c.QualityScore = gpsShare*c.GPSIntegrity + stabilityShare*c.HRStability + plausibleShare*c.HRPlausibility
	if c.QualityScore < x.c.QualityFloor {
		return c, reject(gateQuality, "quality %.2f", c.QualityScore)
	}

	idx, err := vdot.ToIndex(c.DistanceMiles*model.MetersPerMile, c.DurationSeconds)
	if err != nil {
		return c, reject(gateIndex, "%v", err)
	}
	c.FitnessIndex = idx
	if idx < vdot.MinIndex || idx > x.c.MaxIndex {
		return c, reject(gateIndex, "index %.1f", idx)
	}

	c.Score = idx * c.QualityScore
	c.Confidence = tierFor(c.QualityScore)
	return c, nil
}

func (sc *scan) gpsIntegrity(start, end int) (int, float64) {
	gaps := sc.gaps[end] - sc.gaps[start]
	size := float64(end - start + 1)
	allowance := math.Max(minGapAllowance, size/gapDivisor)
	return gaps, clamp01(1 - float64(gaps)/allowance)
}

type hrStats struct {
	driftPct, std, stability, plausibility float64
}

func (sc *scan) heartRate(start, end int) hrStats {
	fallback := hrStats{stability: fallbackStability, plausibility: fallbackPlausible}

	size := end - start + 1
	lo, hi := sc.plausible[start], sc.plausible[end+1]
	count := hi - lo
	need := max(minHRSamples, int(math.Ceil(minHRShare*float64(size))))
	if count < need {
		return fallback
	}

	n := float64(count)
	mean := (sc.hrSum[hi] - sc.hrSum[lo]) / n
	std := math.Sqrt(math.Max(0, (sc.hrSq[hi]-sc.hrSq[lo])/n-mean*mean))
	cv := std / mean

	// Drift compares the first and last thirds of the plausible samples.
	var drift float64
	if third := count / 3; third > 0 {
		first := (sc.hrSum[lo+third] - sc.hrSum[lo]) / float64(third)
		last := (sc.hrSum[hi] - sc.hrSum[hi-third]) / float64(third)
		drift = (last - first) / first * 100
	}

	plaus := 1.0
	switch {
	case mean < raceBandLow:
		plaus = clamp01(1 - (raceBandLow-mean)/raceBandLowSlack)
	case mean > raceBandHigh:
		plaus = clamp01(1 - (mean-raceBandHigh)/raceBandHighSlack)
	}

	return hrStats{
		driftPct:     drift,
		std:          std,
		stability:    clamp01(1 - cvPenalty*cv - math.Abs(drift)/driftDivisor),
		plausibility: plaus,
	}
}

func plausible(hr float64) bool {
	return hr >= minPlausibleHR && hr <= maxPlausibleHR
}

func tierFor(quality float64) types.Tier {
	switch {
	case quality >= highQuality:
		return types.TierHigh
	case quality >= mediumQuality:
		return types.TierMedium
	default:
		return types.TierLow
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
