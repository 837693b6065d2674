// Package repository persists athlete records, the stored fitness baseline
// and the monthly fitness history.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/vdot"
)

// Source is the read side the estimation pipeline consumes. Reads that
// take asOf return only records dated at or before it; a zero asOf means
// no cutoff.
type Source interface {
	// Settings returns ErrNotFound if the athlete is unknown.
	Settings(ctx context.Context, athleteID string) (model.AthleteSettings, error)
	Workouts(ctx context.Context, athleteID string, asOf time.Time) ([]model.Workout, error)
	Races(ctx context.Context, athleteID string, asOf time.Time) ([]model.RaceResult, error)
	// Streams returns the streams recorded for the given workouts. Workouts
	// without one are simply absent from the map.
	Streams(ctx context.Context, athleteID string, workoutIDs []string) (map[string]model.Stream, error)
	// Stream returns ErrNotFound if the workout has no stream.
	Stream(ctx context.Context, athleteID, workoutID string) (model.Stream, error)
	// FirstActivity returns the earliest workout or race date.
	FirstActivity(ctx context.Context, athleteID string) (time.Time, bool, error)
}

// Writer ingests athlete records. Add methods assign an ID when the record
// has none and return the stored record.
type Writer interface {
	PutSettings(ctx context.Context, s model.AthleteSettings) error
	AddWorkout(ctx context.Context, w model.Workout) (model.Workout, error)
	AddRace(ctx context.Context, r model.RaceResult) (model.RaceResult, error)
	// PutStream returns ErrNotFound if the workout does not exist.
	PutStream(ctx context.Context, athleteID string, s model.Stream) error
}

// HistoryStore owns the stored baseline and the monthly history. Both
// write methods are atomic.
type HistoryStore interface {
	// Baseline returns nil when the athlete has no stored baseline.
	Baseline(ctx context.Context, athleteID string) (*float64, error)
	// CommitBaseline stores value as the athlete's baseline and upserts
	// entry into its month in one step.
	CommitBaseline(ctx context.Context, athleteID string, value float64, entry model.VdotHistoryEntry) error
	// ReplaceHistory drops every history row of the athlete and writes
	// entries in their place.
	ReplaceHistory(ctx context.Context, athleteID string, entries []model.VdotHistoryEntry) error
	// History returns the athlete's entries oldest first.
	History(ctx context.Context, athleteID string) ([]model.VdotHistoryEntry, error)
}

// Store is the full persistence surface.
type Store interface {
	Source
	Writer
	HistoryStore
	// Athletes lists known athlete IDs in lexical order.
	Athletes(ctx context.Context) ([]string, error)
	Close() error
}

// validateSettings rejects settings without an athlete or with a stored
// index outside the model range.
func validateSettings(st model.AthleteSettings) error {
	if st.AthleteID == "" {
		return fmt.Errorf("%w: settings without athlete id", ErrInvalidRecord)
	}
	if st.StoredFitnessIndex != nil {
		if err := vdot.Validate(*st.StoredFitnessIndex); err != nil {
			return fmt.Errorf("%w: stored fitness index: %w", ErrInvalidRecord, err)
		}
	}
	return nil
}

// validateHistory checks that entries belong to athleteID and occupy
// distinct months.
func validateHistory(athleteID string, entries []model.VdotHistoryEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.AthleteID != athleteID {
			return ErrInvalidRecord
		}
		k := e.MonthKey()
		if _, dup := seen[k]; dup {
			return ErrDuplicateMonth
		}
		seen[k] = struct{}{}
	}
	return nil
}
