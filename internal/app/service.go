// Package service ties the estimation engine to storage, the job queue
// and the worker pool. It implements the dependencies required by the
// HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/okian/pacer/internal/adapters/export"
	"github.com/okian/pacer/internal/adapters/fitfile"
	"github.com/okian/pacer/internal/adapters/mq/queue"
	"github.com/okian/pacer/internal/adapters/mq/worker"
	"github.com/okian/pacer/internal/adapters/repository"
	"github.com/okian/pacer/internal/domain/backtest"
	"github.com/okian/pacer/internal/domain/baseline"
	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/dedupe"
	"github.com/okian/pacer/internal/domain/engine"
	"github.com/okian/pacer/internal/domain/load"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/segment"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
	"github.com/okian/pacer/pkg/logger"
	"github.com/okian/pacer/pkg/metrics"
)

const (
	defaultQueueSize  = 1024
	defaultJobTimeout = time.Minute
	defaultLoadWindow = 42 * 24 * time.Hour
)

// Service implements the API dependencies for the fitness engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	engine     *engine.Engine
	policy     *baseline.Policy
	loads      *load.Model
	segments   *segment.Extractor
	backtester *backtest.Driver
	jobs       *queue.InMemoryQueue
	pool       *worker.Pool
	pending    dedupe.Deduper

	// Configuration
	coefficients        coeffs.Coefficients
	workerCount         int
	queueSize           int
	jobTimeout          time.Duration
	generatorTimeout    time.Duration
	backtestConcurrency int
	now                 func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The service closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithCoefficients replaces the default tuning.
func WithCoefficients(c coeffs.Coefficients) Option {
	return func(s *Service) { s.coefficients = c }
}

// WithWorkerCount sets the number of job workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithJobTimeout bounds one queued job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithGeneratorTimeout bounds each signal generator.
func WithGeneratorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.generatorTimeout = d
		}
	}
}

// WithBacktestConcurrency caps the months a backtest evaluates at once.
func WithBacktestConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.backtestConcurrency = n
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Synchronous operations work immediately;
// queued jobs need Start.
func New(opts ...Option) *Service {
	s := &Service{
		coefficients:        coeffs.Default(),
		workerCount:         runtime.NumCPU(),
		queueSize:           defaultQueueSize,
		jobTimeout:          defaultJobTimeout,
		backtestConcurrency: 4,
		now:                 time.Now,
		logger:              logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(context.Background())
	}

	eopts := []engine.Option{engine.WithLogger(s.logger.Named("engine"))}
	if s.generatorTimeout > 0 {
		eopts = append(eopts, engine.WithGeneratorTimeout(s.generatorTimeout))
	}
	s.engine = engine.New(s.coefficients, eopts...)
	s.policy = baseline.New(s.coefficients.Baseline)
	s.loads = load.New(s.coefficients.Load)
	s.segments = segment.New(s.coefficients.Segment)
	s.backtester = backtest.New(s, s.store, s.engine, s.policy,
		backtest.WithClock(s.now),
		backtest.WithConcurrency(s.backtestConcurrency),
		backtest.WithLogger(s.logger.Named("backtest")),
	)
	return s
}

// Start creates the job queue and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting pacer service...")

	s.pending = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.queueSize))
	s.jobs = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.pool = worker.NewPool(s.workerCount, s.jobs, s,
		worker.WithJobTimeout(s.jobTimeout),
		worker.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "pacer service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains queued jobs and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info(ctx, "stopping pacer service...")

	var errs []error
	if s.started && s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown workers: %w", err))
		}
	}
	s.started = false
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.logger.Info(ctx, "pacer service stopped")
	return errors.Join(errs...)
}

// Evidence loads everything recorded for an athlete at or before asOf.
// The three record kinds are fetched concurrently; streams follow once
// the workout IDs are known.
func (s *Service) Evidence(ctx context.Context, athleteID string, asOf time.Time) (model.Evidence, error) {
	var (
		wg       sync.WaitGroup
		settings model.AthleteSettings
		workouts []model.Workout
		races    []model.RaceResult
		errs     [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		settings, errs[0] = s.store.Settings(ctx, athleteID)
	}()
	go func() {
		defer wg.Done()
		workouts, errs[1] = s.store.Workouts(ctx, athleteID, asOf)
	}()
	go func() {
		defer wg.Done()
		races, errs[2] = s.store.Races(ctx, athleteID, asOf)
	}()
	wg.Wait()
	if err := errors.Join(errs[:]...); err != nil {
		return model.Evidence{}, fmt.Errorf("load evidence: %w", err)
	}

	ids := make([]string, len(workouts))
	for i, w := range workouts {
		ids[i] = w.ID
	}
	streams, err := s.store.Streams(ctx, athleteID, ids)
	if err != nil {
		return model.Evidence{}, fmt.Errorf("load streams: %w", err)
	}
	return model.Evidence{
		AthleteID: athleteID,
		AsOf:      asOf,
		Settings:  settings,
		Workouts:  workouts,
		Races:     races,
		Streams:   streams,
	}, nil
}

// FirstActivity implements backtest.Source.
func (s *Service) FirstActivity(ctx context.Context, athleteID string) (time.Time, bool, error) {
	return s.store.FirstActivity(ctx, athleteID)
}

// Predict estimates fitness as of asOf; a zero asOf means now. A result
// with a nil Prediction means no signal had enough evidence.
func (s *Service) Predict(ctx context.Context, athleteID string, asOf time.Time) (engine.Result, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC()
	}
	start := time.Now()
	ev, err := s.Evidence(ctx, athleteID, asOf)
	if err != nil {
		return engine.Result{}, err
	}
	res, err := s.engine.Estimate(ctx, ev)
	metrics.RecordEstimateLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordPrediction("error")
		return engine.Result{}, err
	}

	for _, sig := range res.Outcome.Signals {
		metrics.RecordSignalOutcome(string(sig.Name), "used")
	}
	for _, n := range res.Outcome.Failed {
		metrics.RecordSignalOutcome(string(n), "failed")
	}
	for _, n := range res.Outcome.Absent {
		metrics.RecordSignalOutcome(string(n), "absent")
	}
	if res.Prediction == nil {
		metrics.RecordPrediction("insufficient_data")
	} else {
		metrics.RecordPrediction("ok")
	}
	return res, nil
}

// Recalculation is the result of a synchronous baseline update.
type Recalculation struct {
	Decision baseline.Decision      `json:"decision"`
	Entry    model.VdotHistoryEntry `json:"entry"`
}

// Recalculate fuses the current evidence and moves the stored baseline
// toward it. With raw the fused value replaces the baseline outright.
func (s *Service) Recalculate(ctx context.Context, athleteID string, raw bool) (Recalculation, error) {
	now := s.now().UTC()
	res, err := s.Predict(ctx, athleteID, now)
	if err != nil {
		return Recalculation{}, err
	}
	if res.Prediction == nil {
		return Recalculation{}, fmt.Errorf("athlete %s: %w", athleteID, ErrInsufficientData)
	}

	prior, err := s.store.Baseline(ctx, athleteID)
	if err != nil {
		return Recalculation{}, fmt.Errorf("load baseline: %w", err)
	}
	d, err := s.policy.Update(prior, res.Prediction.BlendedFitnessIndex, res.Prediction.Confidence, raw)
	if err != nil {
		return Recalculation{}, err
	}
	entry := d.Entry(athleteID, now)
	if err := s.store.CommitBaseline(ctx, athleteID, d.Value, entry); err != nil {
		return Recalculation{}, fmt.Errorf("commit baseline: %w", err)
	}
	metrics.RecordBaselineUpdate(string(d.Direction))
	metrics.AddHistoryEntriesWritten(1)

	s.logger.Info(ctx, "baseline updated",
		logger.Athlete(athleteID),
		logger.String("direction", string(d.Direction)),
		logger.Float64("value", d.Value),
		logger.Bool("raw", raw),
	)
	return Recalculation{Decision: d, Entry: entry}, nil
}

// Backtest rebuilds the athlete's monthly history.
func (s *Service) Backtest(ctx context.Context, athleteID string) (backtest.Report, error) {
	return s.backtester.Run(ctx, athleteID)
}

// EnqueueRecalculate queues a baseline update.
func (s *Service) EnqueueRecalculate(ctx context.Context, athleteID string, raw bool) (queue.Job, error) {
	return s.enqueue(ctx, queue.NewJob(athleteID, queue.KindRecalculate, raw))
}

// EnqueueBacktest queues a history rebuild.
func (s *Service) EnqueueBacktest(ctx context.Context, athleteID string) (queue.Job, error) {
	return s.enqueue(ctx, queue.NewJob(athleteID, queue.KindBacktest, false))
}

// enqueue queues j unless an identical job for the athlete is still
// waiting to run.
func (s *Service) enqueue(ctx context.Context, j queue.Job) (queue.Job, error) {
	s.mu.RLock()
	q, pending, started := s.jobs, s.pending, s.started
	s.mu.RUnlock()
	if !started {
		return queue.Job{}, ErrNotStarted
	}
	if _, err := s.store.Settings(ctx, j.AthleteID); err != nil {
		return queue.Job{}, err
	}
	key := dedupe.Key(j.AthleteID, string(j.Kind))
	if pending.SeenAndRecord(ctx, key) {
		return queue.Job{}, fmt.Errorf("%w: %s", ErrAlreadyQueued, key)
	}
	if !q.Enqueue(ctx, j) {
		pending.Unrecord(ctx, key)
		return queue.Job{}, ErrQueueFull
	}
	s.logger.Debug(ctx, "job queued",
		logger.String("job", j.ID),
		logger.String("kind", string(j.Kind)),
		logger.Athlete(j.AthleteID),
	)
	return j, nil
}

// Handle implements worker.Handler.
func (s *Service) Handle(ctx context.Context, j queue.Job) error {
	// Release first so records arriving mid-run can queue a follow-up.
	s.mu.RLock()
	pending := s.pending
	s.mu.RUnlock()
	if pending != nil {
		pending.Unrecord(ctx, dedupe.Key(j.AthleteID, string(j.Kind)))
	}

	switch j.Kind {
	case queue.KindRecalculate:
		_, err := s.Recalculate(ctx, j.AthleteID, j.Raw)
		if errors.Is(err, ErrInsufficientData) {
			s.logger.Info(ctx, "recalculation skipped", logger.Athlete(j.AthleteID), logger.Error(err))
			return nil
		}
		return err
	case queue.KindBacktest:
		_, err := s.Backtest(ctx, j.AthleteID)
		if errors.Is(err, backtest.ErrNoActivity) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, j.Kind)
	}
}

// TrainingLoad computes the load snapshot over [from, to]. Zero bounds
// default to the six weeks ending now.
func (s *Service) TrainingLoad(ctx context.Context, athleteID string, from, to time.Time) (load.Snapshot, error) {
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultLoadWindow)
	}
	settings, err := s.store.Settings(ctx, athleteID)
	if err != nil {
		return load.Snapshot{}, err
	}
	ws, err := s.store.Workouts(ctx, athleteID, model.DayStart(to).AddDate(0, 0, 1).Add(-time.Nanosecond))
	if err != nil {
		return load.Snapshot{}, err
	}
	var threshold float64
	if idx := settings.StoredFitnessIndex; idx != nil && vdot.Validate(*idx) == nil {
		threshold = vdot.ThresholdPace(*idx)
	}
	return s.loads.Snapshot(load.Input{
		Workouts:      ws,
		Settings:      settings,
		ThresholdPace: threshold,
		From:          from,
		To:            to,
	})
}

// BestSegment finds the best sustained window of a recorded workout.
func (s *Service) BestSegment(ctx context.Context, athleteID, workoutID string) (segment.Result, error) {
	st, err := s.store.Stream(ctx, athleteID, workoutID)
	if err != nil {
		return segment.Result{}, err
	}
	return s.SegmentOf(st)
}

// SegmentOf runs the best-segment search over st.
func (s *Service) SegmentOf(st model.Stream) (segment.Result, error) {
	start := time.Now()
	res, err := s.segments.Find(st)
	metrics.RecordSegmentSearch(float64(time.Since(start).Microseconds())/1000, res.WindowsEvaluated)
	return res, err
}

// PaceZones returns training paces for the stored baseline, falling back
// to a fresh estimate when none is stored.
func (s *Service) PaceZones(ctx context.Context, athleteID string) (vdot.PaceZones, error) {
	idx, err := s.store.Baseline(ctx, athleteID)
	if err != nil {
		return vdot.PaceZones{}, err
	}
	if idx == nil {
		res, err := s.Predict(ctx, athleteID, time.Time{})
		if err != nil {
			return vdot.PaceZones{}, err
		}
		if res.Prediction == nil {
			return vdot.PaceZones{}, fmt.Errorf("athlete %s: %w", athleteID, ErrInsufficientData)
		}
		v := res.Prediction.BlendedFitnessIndex
		idx = &v
	}
	return vdot.ToPaceZones(*idx)
}

// History returns the athlete's monthly history, oldest first.
func (s *Service) History(ctx context.Context, athleteID string) ([]model.VdotHistoryEntry, error) {
	return s.store.History(ctx, athleteID)
}

// ExportHistory writes the athlete's history to w as parquet.
func (s *Service) ExportHistory(ctx context.Context, athleteID string, w io.Writer) (int, error) {
	entries, err := s.store.History(ctx, athleteID)
	if err != nil {
		return 0, err
	}
	return export.WriteHistory(w, entries)
}

// PutSettings stores athlete settings.
func (s *Service) PutSettings(ctx context.Context, st model.AthleteSettings) error {
	return s.store.PutSettings(ctx, st)
}

// AddWorkout stores a workout.
func (s *Service) AddWorkout(ctx context.Context, w model.Workout) (model.Workout, error) {
	return s.store.AddWorkout(ctx, w)
}

// AddRace stores a race result.
func (s *Service) AddRace(ctx context.Context, r model.RaceResult) (model.RaceResult, error) {
	return s.store.AddRace(ctx, r)
}

// PutStream attaches samples to a stored workout.
func (s *Service) PutStream(ctx context.Context, athleteID string, st model.Stream) error {
	return s.store.PutStream(ctx, athleteID, st)
}

// ImportFIT decodes a FIT activity and stores its workout and stream.
func (s *Service) ImportFIT(ctx context.Context, athleteID string, r io.Reader, wt types.WorkoutType) (model.Workout, error) {
	act, err := fitfile.Decode(r, fitfile.Options{AthleteID: athleteID, WorkoutType: wt})
	if err != nil {
		return model.Workout{}, err
	}
	w, err := s.store.AddWorkout(ctx, act.Workout)
	if err != nil {
		return model.Workout{}, err
	}
	if act.Stream.Len() > 0 {
		if err := s.store.PutStream(ctx, athleteID, act.Stream); err != nil {
			return model.Workout{}, err
		}
	}
	s.logger.Info(ctx, "activity imported",
		logger.Athlete(athleteID),
		logger.String("workout", w.ID),
		logger.Float64("miles", w.DistanceMiles),
		logger.Int("samples", act.Stream.Len()),
	)
	return w, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":             s.started,
		"workerCount":         s.workerCount,
		"queueSize":           s.queueSize,
		"backtestConcurrency": s.backtestConcurrency,
	}
	if ids, err := s.store.Athletes(ctx); err == nil {
		stats["athletes"] = len(ids)
		metrics.UpdateAthletesTotal(len(ids))
	}
	if s.started {
		processed, failed := s.pool.Stats()
		stats["queueLength"] = s.jobs.Len(ctx)
		stats["jobsProcessed"] = processed
		stats["jobsFailed"] = failed
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}
