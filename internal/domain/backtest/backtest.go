// Package backtest rebuilds an athlete's monthly fitness history by
// running the estimation pipeline as of the end of each past month.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pacer/internal/domain/baseline"
	"github.com/okian/pacer/internal/domain/engine"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/vdot"
	"github.com/okian/pacer/pkg/logger"
	"github.com/okian/pacer/pkg/metrics"
)

const defaultConcurrency = 4

// Source reads the evidence the pipeline needs.
type Source interface {
	// FirstActivity returns the date of the athlete's earliest workout or
	// race; ok is false when there is none.
	FirstActivity(ctx context.Context, athleteID string) (first time.Time, ok bool, err error)
	// Evidence returns everything recorded for the athlete at or before asOf.
	Evidence(ctx context.Context, athleteID string, asOf time.Time) (model.Evidence, error)
}

// HistoryWriter replaces an athlete's history in one atomic step.
type HistoryWriter interface {
	ReplaceHistory(ctx context.Context, athleteID string, entries []model.VdotHistoryEntry) error
}

// Estimator runs the fusion pipeline. *engine.Engine implements it.
type Estimator interface {
	Estimate(ctx context.Context, ev model.Evidence) (engine.Result, error)
}

// Outcome classifies one month.
type Outcome string

// Month outcomes.
const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// MonthResult is the result of one as-of run.
type MonthResult struct {
	Month   time.Time
	Cutoff  time.Time
	Outcome Outcome
	Entry   *model.VdotHistoryEntry
	Err     error
}

// Report summarizes a full run.
type Report struct {
	RunID     string                   `json:"run_id"`
	AthleteID string                   `json:"athlete_id"`
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Processed int                      `json:"processed"`
	Failed    int                      `json:"failed"`
	Skipped   int                      `json:"skipped"`
	Entries   []model.VdotHistoryEntry `json:"entries"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock sets the source of "now".
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithConcurrency bounds how many months run at once.
func WithConcurrency(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// Driver runs backtests.
type Driver struct {
	src         Source
	store       HistoryWriter
	est         Estimator
	policy      *baseline.Policy
	now         func() time.Time
	concurrency int
	log         logger.Logger
}

// New returns a Driver.
func New(src Source, store HistoryWriter, est Estimator, policy *baseline.Policy, opts ...Option) *Driver {
	d := &Driver{
		src:         src,
		store:       store,
		est:         est,
		policy:      policy,
		now:         time.Now,
		concurrency: defaultConcurrency,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Month runs the pipeline as of the last instant of the month containing
// month. Every input is re-filtered to the cutoff and the stored baseline
// anchor is cleared, since it is not time-stamped. The result depends only
// on data dated at or before the cutoff. Without an anchor the
// efficiency_trend signal has nothing to scale and never contributes to a
// backtested month.
func (d *Driver) Month(ctx context.Context, athleteID string, month time.Time) (res MonthResult) {
	res.Month = model.MonthStart(month)
	res.Cutoff = model.MonthEnd(month)
	defer func() {
		if p := recover(); p != nil {
			res.Outcome = OutcomeFailed
			res.Entry = nil
			res.Err = fmt.Errorf("%w: %v", ErrMonthPanic, p)
		}
	}()

	ev, err := d.src.Evidence(ctx, athleteID, res.Cutoff)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("load evidence: %w", err)
		return res
	}
	ev = ev.Restrict(res.Cutoff)
	ev.AthleteID = athleteID
	ev.Settings.StoredFitnessIndex = nil

	out, err := d.est.Estimate(ctx, ev)
	switch {
	case errors.Is(err, vdot.ErrIndexOutOfRange):
		res.Outcome = OutcomeSkipped
		return res
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, err
		return res
	case out.Prediction == nil:
		res.Outcome = OutcomeSkipped
		return res
	}

	p := out.Prediction
	dec, err := d.policy.Update(nil, p.BlendedFitnessIndex, p.Confidence, true)
	if err != nil {
		res.Outcome = OutcomeSkipped
		return res
	}
	dec.Source = model.HistorySourceBacktest
	dec.Rationale = fmt.Sprintf("backtest as of %s from %d signals (agreement %.2f)",
		res.Cutoff.Format(time.DateOnly), p.DataQuality.SignalsUsed, p.AgreementScore)
	entry := dec.Entry(athleteID, res.Month)
	res.Outcome = OutcomeProcessed
	res.Entry = &entry
	return res
}

// Run backtests every month from the athlete's first activity through the
// current month, then replaces the stored history with the carried-forward
// series. A failing month is counted and the run continues. If ctx is
// cancelled the run stops at a month boundary and nothing is written.
func (d *Driver) Run(ctx context.Context, athleteID string) (Report, error) {
	start := time.Now()
	first, ok, err := d.src.FirstActivity(ctx, athleteID)
	if err != nil {
		return Report{}, fmt.Errorf("first activity: %w", err)
	}
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrNoActivity, athleteID)
	}

	months := monthsBetween(first, d.now())
	rep := Report{RunID: uuid.NewString(), AthleteID: athleteID}
	if len(months) == 0 {
		return rep, fmt.Errorf("%w: first activity %s is in the future", ErrNoActivity, first.Format(time.DateOnly))
	}
	rep.From, rep.To = months[0], months[len(months)-1]

	log := d.log.With(logger.Athlete(athleteID), logger.String("run_id", rep.RunID))
	log.Info(ctx, "backtest started", logger.Int("months", len(months)))

	results := make([]MonthResult, len(months))
	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for i, m := range months {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			results[i] = d.Month(ctx, athleteID, m)
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		log.Warn(ctx, "backtest cancelled, history left untouched", logger.Error(err))
		return Report{}, fmt.Errorf("backtest cancelled: %w", err)
	}

	for _, r := range results {
		metrics.RecordBacktestMonth(string(r.Outcome))
		switch r.Outcome {
		case OutcomeProcessed:
			rep.Processed++
		case OutcomeSkipped:
			rep.Skipped++
		default:
			rep.Failed++
			metrics.RecordErrorByComponent("backtest", "month_failed")
			log.Warn(ctx, "backtest month failed",
				logger.String("month", r.Month.Format("2006-01")),
				logger.Error(r.Err))
		}
	}
	rep.Entries = carryForward(athleteID, results)

	if err := d.store.ReplaceHistory(ctx, athleteID, rep.Entries); err != nil {
		return Report{}, fmt.Errorf("replace history: %w", err)
	}
	metrics.AddHistoryEntriesWritten(len(rep.Entries))
	metrics.RecordBacktestDuration(float64(time.Since(start).Milliseconds()))

	log.Info(ctx, "backtest finished",
		logger.Int("processed", rep.Processed),
		logger.Int("skipped", rep.Skipped),
		logger.Int("failed", rep.Failed),
		logger.Duration("elapsed", time.Since(start)))
	return rep, nil
}

// carryForward turns month results into one entry per month from the first
// processed month on. A month without a fresh estimate repeats the last
// known value.
func carryForward(athleteID string, results []MonthResult) []model.VdotHistoryEntry {
	var (
		out  []model.VdotHistoryEntry
		last *model.VdotHistoryEntry
	)
	for _, r := range results {
		if r.Entry != nil {
			out = append(out, *r.Entry)
			last = r.Entry
			continue
		}
		if last == nil {
			continue
		}
		out = append(out, model.VdotHistoryEntry{
			ID:           uuid.NewString(),
			AthleteID:    athleteID,
			Date:         r.Month,
			FitnessIndex: last.FitnessIndex,
			Source:       model.HistorySourceCarriedForward,
			Confidence:   last.Confidence,
			Notes:        fmt.Sprintf("carried forward from %s (%s)", last.Date.Format("2006-01"), r.Outcome),
		})
	}
	return out
}

// monthsBetween lists the first instant of every month from first through
// now, inclusive.
func monthsBetween(first, now time.Time) []time.Time {
	var out []time.Time
	end := model.MonthStart(now)
	for m := model.MonthStart(first); !m.After(end); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}
