// Package load models chronic and acute training load.
//
// Daily stress is gap-filled so every calendar day contributes to the
// moving averages; a rest day decays fatigue instead of being skipped.
package load

import (
	"fmt"
	"time"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
)

const day = 24 * time.Hour

// NoDataMessage explains an empty snapshot.
const NoDataMessage = "no training data in range"

// Sufficiency levels.
const (
	SufficiencyNone   = "none"
	SufficiencyLow    = "low"
	SufficiencyMedium = "medium"
	SufficiencyHigh   = "high"
)

// DailyLoad is the summed stress of one UTC calendar day.
type DailyLoad struct {
	Date time.Time `json:"date"`
	Load float64   `json:"load"`
}

// FitnessMetricsPoint is the load state at the end of one day.
type FitnessMetricsPoint struct {
	Date      time.Time `json:"date"`
	DailyLoad float64   `json:"daily_load"`
	CTL       float64   `json:"ctl"`
	ATL       float64   `json:"atl"`
	TSB       float64   `json:"tsb"`
}

// WeeklyRange is a recommended weekly load band.
type WeeklyRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Sufficiency describes how much history backs a snapshot.
type Sufficiency struct {
	Level         string  `json:"level"`
	Confidence    float64 `json:"confidence"`
	Message       string  `json:"message,omitempty"`
	WorkoutDays   int     `json:"workout_days"`
	DaysOfHistory int     `json:"days_of_history"`
}

// Snapshot is the training-load state over a window. When NoData is set
// the numeric fields are zero and must not be presented.
type Snapshot struct {
	From              time.Time             `json:"from"`
	To                time.Time             `json:"to"`
	NoData            bool                  `json:"no_data"`
	Sufficiency       Sufficiency           `json:"sufficiency"`
	Points            []FitnessMetricsPoint `json:"points,omitempty"`
	Current           *FitnessMetricsPoint  `json:"current,omitempty"`
	RampRate          float64               `json:"ramp_rate"`
	Risk              types.RiskTier        `json:"risk,omitempty"`
	OptimalWeekly     WeeklyRange           `json:"optimal_weekly"`
	AcuteChronicRatio float64               `json:"acute_chronic_ratio"`
}

// Input is everything a snapshot is computed from.
type Input struct {
	Workouts []model.Workout
	Settings model.AthleteSettings
	// ThresholdPace in seconds per mile; zero disables pace-based stress.
	ThresholdPace float64
	From          time.Time
	To            time.Time
}

// Option configures a Model.
type Option func(*Model)

// WithWarmupDays sets how many days before the window the averages are
// seeded from.
func WithWarmupDays(days int) Option {
	return func(m *Model) {
		if days >= 0 {
			m.warmupDays = days
		}
	}
}

// Model computes stress scores and load series.
type Model struct {
	c          coeffs.Load
	warmupDays int
}

// New returns a Model using c.
func New(c coeffs.Load, opts ...Option) *Model {
	m := &Model{
		c:          c,
		warmupDays: int(3 * c.ChronicDays),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DailySeries returns one DailyLoad per UTC day in [from, to], summing
// same-day workouts and filling empty days with zero.
func (m *Model) DailySeries(ws []model.Workout, s model.AthleteSettings, thresholdPace float64, from, to time.Time) ([]DailyLoad, error) {
	start, end := model.DayStart(from), model.DayStart(to)
	if end.Before(start) {
		return nil, fmt.Errorf("daily series %s..%s: %w", start.Format(time.DateOnly), end.Format(time.DateOnly), ErrInvalidWindow)
	}

	days := int(end.Sub(start)/day) + 1
	out := make([]DailyLoad, days)
	for i := range out {
		out[i].Date = start.AddDate(0, 0, i)
	}
	for _, w := range ws {
		d := model.DayStart(w.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		stress, _ := m.WorkoutStress(w, s, thresholdPace)
		out[int(d.Sub(start)/day)].Load += stress
	}
	return out, nil
}

// Metrics runs the chronic and acute moving averages over series.
func (m *Model) Metrics(series []DailyLoad) []FitnessMetricsPoint {
	out := make([]FitnessMetricsPoint, len(series))
	var ctl, atl float64
	for i, d := range series {
		ctl += (d.Load - ctl) / m.c.ChronicDays
		atl += (d.Load - atl) / m.c.AcuteDays
		out[i] = FitnessMetricsPoint{
			Date:      d.Date,
			DailyLoad: d.Load,
			CTL:       ctl,
			ATL:       atl,
			TSB:       ctl - atl,
		}
	}
	return out
}

// Snapshot computes the load state over [in.From, in.To]. Workouts after
// in.To are ignored.
func (m *Model) Snapshot(in Input) (Snapshot, error) {
	from, to := model.DayStart(in.From), model.DayStart(in.To)
	if to.Before(from) {
		return Snapshot{}, fmt.Errorf("snapshot: %w", ErrInvalidWindow)
	}
	snap := Snapshot{From: from, To: to}

	ws := model.WorkoutsAsOf(in.Workouts, to.Add(day-time.Nanosecond))
	suff := m.sufficiency(ws, from, to)
	snap.Sufficiency = suff
	if suff.Level == SufficiencyNone {
		snap.NoData = true
		return snap, nil
	}

	seedFrom := from.AddDate(0, 0, -m.warmupDays)
	series, err := m.DailySeries(ws, in.Settings, in.ThresholdPace, seedFrom, to)
	if err != nil {
		return Snapshot{}, err
	}
	all := m.Metrics(series)
	snap.Points = all[m.warmupDays:]
	cur := all[len(all)-1]
	snap.Current = &cur

	past := all[max(0, len(all)-1-m.c.RampWindowDays)]
	weeks := float64(m.c.RampWindowDays) / 7
	snap.RampRate = (cur.CTL - past.CTL) / weeks
	snap.Risk = m.risk(snap.RampRate)

	var trailing float64
	for _, d := range series[max(0, len(series)-m.c.RampWindowDays):] {
		trailing += d.Load
	}
	weekly := trailing / weeks
	snap.OptimalWeekly = WeeklyRange{Low: weekly * m.c.OptimalLow, High: weekly * m.c.OptimalHigh}

	if cur.CTL > 0 {
		snap.AcuteChronicRatio = cur.ATL / cur.CTL
	}
	return snap, nil
}

func (m *Model) risk(ramp float64) types.RiskTier {
	switch {
	case ramp <= m.c.RampSafe:
		return types.RiskSafe
	case ramp <= m.c.RampCaution:
		return types.RiskCaution
	default:
		return types.RiskHigh
	}
}

// sufficiency grades the history depth. Zero workout days inside the
// window yields SufficiencyNone with zero confidence.
func (m *Model) sufficiency(ws []model.Workout, from, to time.Time) Sufficiency {
	seen := make(map[time.Time]struct{})
	for _, w := range ws {
		d := model.DayStart(w.Date)
		if !d.Before(from) && !d.After(to) {
			seen[d] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return Sufficiency{Level: SufficiencyNone, Confidence: 0, Message: NoDataMessage}
	}

	history := int(to.Sub(model.DayStart(ws[0].Date))/day) + 1
	s := Sufficiency{WorkoutDays: len(seen), DaysOfHistory: history}
	switch {
	case history < m.c.LowConfidenceDays:
		s.Level, s.Confidence = SufficiencyLow, 0.3
		s.Message = fmt.Sprintf("only %d days of history", history)
	case history < m.c.MediumConfidenceDays:
		s.Level, s.Confidence = SufficiencyMedium, 0.6
		s.Message = fmt.Sprintf("%d days of history; chronic load still settling", history)
	default:
		s.Level, s.Confidence = SufficiencyHigh, 1.0
	}
	return s
}
