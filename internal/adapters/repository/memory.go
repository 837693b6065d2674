package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/pkg/metrics"
)

type athlete struct {
	settings model.AthleteSettings
	workouts map[string]model.Workout
	races    map[string]model.RaceResult
	streams  map[string]model.Stream
	history  map[string]model.VdotHistoryEntry // by month key
}

func newAthlete(id string) *athlete {
	return &athlete{
		settings: model.AthleteSettings{AthleteID: id},
		workouts: make(map[string]model.Workout),
		races:    make(map[string]model.RaceResult),
		streams:  make(map[string]model.Stream),
		history:  make(map[string]model.VdotHistoryEntry),
	}
}

// MemoryStore keeps everything in process memory. It is safe for
// concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	athletes map[string]*athlete

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	closeOnce             sync.Once
}

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		athletes:              make(map[string]*athlete),
		metricsUpdateInterval: metrics.RefreshInterval(),
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.RLock()
				n := len(s.athletes)
				s.mu.RUnlock()
				metrics.UpdateAthletesTotal(n)
			}
		}
	}()
}

// get returns the athlete or nil; the caller holds the lock.
func (s *MemoryStore) get(id string) *athlete { return s.athletes[id] }

// ensure returns the athlete, creating it; the caller holds the write lock.
func (s *MemoryStore) ensure(id string) *athlete {
	a, ok := s.athletes[id]
	if !ok {
		a = newAthlete(id)
		s.athletes[id] = a
	}
	return a
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

// Settings implements Source.
func (s *MemoryStore) Settings(_ context.Context, athleteID string) (model.AthleteSettings, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.get(athleteID)
	if a == nil {
		return model.AthleteSettings{}, fmt.Errorf("athlete %s: %w", athleteID, ErrNotFound)
	}
	out := a.settings
	if out.StoredFitnessIndex != nil {
		v := *out.StoredFitnessIndex
		out.StoredFitnessIndex = &v
	}
	return out, nil
}

// Workouts implements Source.
func (s *MemoryStore) Workouts(_ context.Context, athleteID string, asOf time.Time) ([]model.Workout, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.get(athleteID)
	if a == nil {
		return nil, nil
	}
	out := make([]model.Workout, 0, len(a.workouts))
	for _, w := range a.workouts {
		if asOf.IsZero() || !w.Date.After(asOf) {
			w.Laps = slices.Clone(w.Laps)
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Races implements Source.
func (s *MemoryStore) Races(_ context.Context, athleteID string, asOf time.Time) ([]model.RaceResult, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.get(athleteID)
	if a == nil {
		return nil, nil
	}
	out := make([]model.RaceResult, 0, len(a.races))
	for _, r := range a.races {
		if asOf.IsZero() || !r.Date.After(asOf) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Streams implements Source.
func (s *MemoryStore) Streams(_ context.Context, athleteID string, workoutIDs []string) (map[string]model.Stream, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Stream)
	a := s.get(athleteID)
	if a == nil {
		return out, nil
	}
	for _, id := range workoutIDs {
		if st, ok := a.streams[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

// Stream implements Source.
func (s *MemoryStore) Stream(_ context.Context, athleteID, workoutID string) (model.Stream, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a := s.get(athleteID); a != nil {
		if st, ok := a.streams[workoutID]; ok {
			return st, nil
		}
	}
	return model.Stream{}, fmt.Errorf("stream %s: %w", workoutID, ErrNotFound)
}

// FirstActivity implements Source.
func (s *MemoryStore) FirstActivity(_ context.Context, athleteID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.get(athleteID)
	if a == nil {
		return time.Time{}, false, nil
	}
	var first time.Time
	for _, w := range a.workouts {
		if first.IsZero() || w.Date.Before(first) {
			first = w.Date
		}
	}
	for _, r := range a.races {
		if first.IsZero() || r.Date.Before(first) {
			first = r.Date
		}
	}
	return first, !first.IsZero(), nil
}

// PutSettings implements Writer. A nil stored index keeps the current one.
func (s *MemoryStore) PutSettings(_ context.Context, st model.AthleteSettings) error {
	if err := validateSettings(st); err != nil {
		return err
	}
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensure(st.AthleteID)
	if st.StoredFitnessIndex == nil {
		st.StoredFitnessIndex = a.settings.StoredFitnessIndex
	} else {
		v := *st.StoredFitnessIndex
		st.StoredFitnessIndex = &v
	}
	a.settings = st
	return nil
}

// AddWorkout implements Writer.
func (s *MemoryStore) AddWorkout(_ context.Context, w model.Workout) (model.Workout, error) {
	if w.AthleteID == "" || w.Date.IsZero() {
		return model.Workout{}, fmt.Errorf("%w: workout needs athlete id and date", ErrInvalidRecord)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Laps = slices.Clone(w.Laps)
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(w.AthleteID).workouts[w.ID] = w
	return w, nil
}

// AddRace implements Writer.
func (s *MemoryStore) AddRace(_ context.Context, r model.RaceResult) (model.RaceResult, error) {
	if r.AthleteID == "" || r.Date.IsZero() {
		return model.RaceResult{}, fmt.Errorf("%w: race needs athlete id and date", ErrInvalidRecord)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(r.AthleteID).races[r.ID] = r
	return r, nil
}

// PutStream implements Writer.
func (s *MemoryStore) PutStream(_ context.Context, athleteID string, st model.Stream) error {
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.get(athleteID)
	if a == nil {
		return fmt.Errorf("athlete %s: %w", athleteID, ErrNotFound)
	}
	if _, ok := a.workouts[st.WorkoutID]; !ok {
		return fmt.Errorf("workout %s: %w", st.WorkoutID, ErrNotFound)
	}
	a.streams[st.WorkoutID] = model.Stream{
		WorkoutID:     st.WorkoutID,
		DistanceMiles: slices.Clone(st.DistanceMiles),
		TimeSeconds:   slices.Clone(st.TimeSeconds),
		HeartRate:     slices.Clone(st.HeartRate),
	}
	return nil
}

// Baseline implements HistoryStore.
func (s *MemoryStore) Baseline(_ context.Context, athleteID string) (*float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.get(athleteID)
	if a == nil || a.settings.StoredFitnessIndex == nil {
		return nil, nil
	}
	v := *a.settings.StoredFitnessIndex
	return &v, nil
}

// CommitBaseline implements HistoryStore.
func (s *MemoryStore) CommitBaseline(_ context.Context, athleteID string, value float64, entry model.VdotHistoryEntry) error {
	if entry.AthleteID != athleteID {
		return fmt.Errorf("%w: entry belongs to %q", ErrInvalidRecord, entry.AthleteID)
	}
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.ensure(athleteID)
	v := value
	a.settings.StoredFitnessIndex = &v
	a.history[entry.MonthKey()] = entry
	return nil
}

// ReplaceHistory implements HistoryStore.
func (s *MemoryStore) ReplaceHistory(_ context.Context, athleteID string, entries []model.VdotHistoryEntry) error {
	if err := validateHistory(athleteID, entries); err != nil {
		return err
	}
	next := make(map[string]model.VdotHistoryEntry, len(entries))
	for _, e := range entries {
		next[e.MonthKey()] = e
	}
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure(athleteID).history = next
	return nil
}

// History implements HistoryStore.
func (s *MemoryStore) History(_ context.Context, athleteID string) ([]model.VdotHistoryEntry, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.get(athleteID)
	if a == nil {
		return nil, nil
	}
	out := make([]model.VdotHistoryEntry, 0, len(a.history))
	for _, e := range a.history {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Athletes implements Store.
func (s *MemoryStore) Athletes(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.athletes))
	for id := range s.athletes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
