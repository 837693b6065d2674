package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
)

const defaultBusyTimeout = 5 * time.Second

// SQLiteStore persists records in a SQLite database through the pure-Go
// modernc driver. Record payloads are stored as JSON next to the columns
// that queries filter on.
type SQLiteStore struct {
	db          *sql.DB
	path        string
	busyTimeout time.Duration
}

// NewSQLiteStore opens (creating if needed) the database at path and runs
// migrations. Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{path: path, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, s.busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes
	// writers the way SQLite wants anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s.db = db
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database. It is safe to call more than once; calls made
// after it fail with the database/sql closed-database error.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "initial_schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS athletes (
				athlete_id   TEXT PRIMARY KEY,
				settings     TEXT NOT NULL,
				stored_index REAL
			)`,
			`CREATE TABLE IF NOT EXISTS workouts (
				id         TEXT PRIMARY KEY,
				athlete_id TEXT NOT NULL REFERENCES athletes(athlete_id),
				date_ns    INTEGER NOT NULL,
				payload    TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_workouts_athlete_date ON workouts(athlete_id, date_ns)`,
			`CREATE TABLE IF NOT EXISTS races (
				id         TEXT PRIMARY KEY,
				athlete_id TEXT NOT NULL REFERENCES athletes(athlete_id),
				date_ns    INTEGER NOT NULL,
				payload    TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_races_athlete_date ON races(athlete_id, date_ns)`,
			`CREATE TABLE IF NOT EXISTS streams (
				workout_id TEXT PRIMARY KEY REFERENCES workouts(id),
				athlete_id TEXT NOT NULL,
				payload    TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS history (
				id            TEXT PRIMARY KEY,
				athlete_id    TEXT NOT NULL REFERENCES athletes(athlete_id),
				month         TEXT NOT NULL,
				date_ns       INTEGER NOT NULL,
				fitness_index REAL NOT NULL,
				source        TEXT NOT NULL,
				confidence    TEXT NOT NULL,
				notes         TEXT NOT NULL DEFAULT '',
				UNIQUE (athlete_id, month)
			)`,
		},
	},
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at INTEGER NOT NULL)`); err != nil {
		return err
	}
	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
				m.version, m.name, time.Now().Unix())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func ensureAthlete(ctx context.Context, ex execer, athleteID string) error {
	payload, err := json.Marshal(model.AthleteSettings{AthleteID: athleteID})
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT OR IGNORE INTO athletes (athlete_id, settings) VALUES (?, ?)`,
		athleteID, string(payload))
	return err
}

// Settings implements Source.
func (s *SQLiteStore) Settings(ctx context.Context, athleteID string) (model.AthleteSettings, error) {
	defer observeQuery(time.Now())
	var (
		payload string
		stored  sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT settings, stored_index FROM athletes WHERE athlete_id = ?`, athleteID).Scan(&payload, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AthleteSettings{}, fmt.Errorf("athlete %s: %w", athleteID, ErrNotFound)
	}
	if err != nil {
		return model.AthleteSettings{}, err
	}
	var st model.AthleteSettings
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return model.AthleteSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	st.AthleteID = athleteID
	st.StoredFitnessIndex = nil
	if stored.Valid {
		v := stored.Float64
		st.StoredFitnessIndex = &v
	}
	return st, nil
}

func queryPayloads[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func cutoff(asOf time.Time) int64 {
	if asOf.IsZero() {
		return math.MaxInt64
	}
	return asOf.UnixNano()
}

// Workouts implements Source.
func (s *SQLiteStore) Workouts(ctx context.Context, athleteID string, asOf time.Time) ([]model.Workout, error) {
	defer observeQuery(time.Now())
	return queryPayloads[model.Workout](ctx, s.db,
		`SELECT payload FROM workouts WHERE athlete_id = ? AND date_ns <= ? ORDER BY date_ns, id`,
		athleteID, cutoff(asOf))
}

// Races implements Source.
func (s *SQLiteStore) Races(ctx context.Context, athleteID string, asOf time.Time) ([]model.RaceResult, error) {
	defer observeQuery(time.Now())
	return queryPayloads[model.RaceResult](ctx, s.db,
		`SELECT payload FROM races WHERE athlete_id = ? AND date_ns <= ? ORDER BY date_ns, id`,
		athleteID, cutoff(asOf))
}

// Streams implements Source.
func (s *SQLiteStore) Streams(ctx context.Context, athleteID string, workoutIDs []string) (map[string]model.Stream, error) {
	defer observeQuery(time.Now())
	out := make(map[string]model.Stream, len(workoutIDs))
	if len(workoutIDs) == 0 {
		return out, nil
	}
	want := make(map[string]struct{}, len(workoutIDs))
	for _, id := range workoutIDs {
		want[id] = struct{}{}
	}
	all, err := queryPayloads[model.Stream](ctx, s.db,
		`SELECT payload FROM streams WHERE athlete_id = ?`, athleteID)
	if err != nil {
		return nil, err
	}
	for _, st := range all {
		if _, ok := want[st.WorkoutID]; ok {
			out[st.WorkoutID] = st
		}
	}
	return out, nil
}

// Stream implements Source.
func (s *SQLiteStore) Stream(ctx context.Context, athleteID, workoutID string) (model.Stream, error) {
	defer observeQuery(time.Now())
	got, err := queryPayloads[model.Stream](ctx, s.db,
		`SELECT payload FROM streams WHERE athlete_id = ? AND workout_id = ?`, athleteID, workoutID)
	if err != nil {
		return model.Stream{}, err
	}
	if len(got) == 0 {
		return model.Stream{}, fmt.Errorf("stream %s: %w", workoutID, ErrNotFound)
	}
	return got[0], nil
}

// FirstActivity implements Source.
func (s *SQLiteStore) FirstActivity(ctx context.Context, athleteID string) (time.Time, bool, error) {
	var first sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(d) FROM (
		SELECT MIN(date_ns) AS d FROM workouts WHERE athlete_id = ?
		UNION ALL
		SELECT MIN(date_ns) AS d FROM races WHERE athlete_id = ?)`, athleteID, athleteID).Scan(&first)
	if err != nil {
		return time.Time{}, false, err
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, first.Int64).UTC(), true, nil
}

// PutSettings implements Writer. A nil stored index keeps the current one.
func (s *SQLiteStore) PutSettings(ctx context.Context, st model.AthleteSettings) error {
	if err := validateSettings(st); err != nil {
		return err
	}
	defer observeUpdate(time.Now())
	stored := sql.NullFloat64{}
	if st.StoredFitnessIndex != nil {
		stored = sql.NullFloat64{Float64: *st.StoredFitnessIndex, Valid: true}
	}
	st.StoredFitnessIndex = nil
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO athletes (athlete_id, settings, stored_index) VALUES (?, ?, ?)
		ON CONFLICT(athlete_id) DO UPDATE SET
			settings = excluded.settings,
			stored_index = COALESCE(excluded.stored_index, athletes.stored_index)`,
		st.AthleteID, string(payload), stored)
	return err
}

// AddWorkout implements Writer.
func (s *SQLiteStore) AddWorkout(ctx context.Context, w model.Workout) (model.Workout, error) {
	if w.AthleteID == "" || w.Date.IsZero() {
		return model.Workout{}, fmt.Errorf("%w: workout needs athlete id and date", ErrInvalidRecord)
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	defer observeUpdate(time.Now())
	payload, err := json.Marshal(w)
	if err != nil {
		return model.Workout{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureAthlete(ctx, tx, w.AthleteID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO workouts (id, athlete_id, date_ns, payload) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET date_ns = excluded.date_ns, payload = excluded.payload`,
			w.ID, w.AthleteID, w.Date.UnixNano(), string(payload))
		return err
	})
	if err != nil {
		return model.Workout{}, err
	}
	return w, nil
}

// AddRace implements Writer.
func (s *SQLiteStore) AddRace(ctx context.Context, r model.RaceResult) (model.RaceResult, error) {
	if r.AthleteID == "" || r.Date.IsZero() {
		return model.RaceResult{}, fmt.Errorf("%w: race needs athlete id and date", ErrInvalidRecord)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	defer observeUpdate(time.Now())
	payload, err := json.Marshal(r)
	if err != nil {
		return model.RaceResult{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureAthlete(ctx, tx, r.AthleteID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO races (id, athlete_id, date_ns, payload) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET date_ns = excluded.date_ns, payload = excluded.payload`,
			r.ID, r.AthleteID, r.Date.UnixNano(), string(payload))
		return err
	})
	if err != nil {
		return model.RaceResult{}, err
	}
	return r, nil
}

// PutStream implements Writer.
func (s *SQLiteStore) PutStream(ctx context.Context, athleteID string, st model.Stream) error {
	defer observeUpdate(time.Now())
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workouts WHERE id = ? AND athlete_id = ?`,
		st.WorkoutID, athleteID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("workout %s: %w", st.WorkoutID, ErrNotFound)
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO streams (workout_id, athlete_id, payload) VALUES (?, ?, ?)
		ON CONFLICT(workout_id) DO UPDATE SET payload = excluded.payload`,
		st.WorkoutID, athleteID, string(payload))
	return err
}

// Baseline implements HistoryStore.
func (s *SQLiteStore) Baseline(ctx context.Context, athleteID string) (*float64, error) {
	var stored sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT stored_index FROM athletes WHERE athlete_id = ?`, athleteID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !stored.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := stored.Float64
	return &v, nil
}

func insertHistory(ctx context.Context, ex execer, e model.VdotHistoryEntry) error {
	_, err := ex.ExecContext(ctx, `INSERT INTO history
		(id, athlete_id, month, date_ns, fitness_index, source, confidence, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id, month) DO UPDATE SET
			id = excluded.id,
			date_ns = excluded.date_ns,
			fitness_index = excluded.fitness_index,
			source = excluded.source,
			confidence = excluded.confidence,
			notes = excluded.notes`,
		e.ID, e.AthleteID, model.MonthStart(e.Date).Format("2006-01"), e.Date.UnixNano(),
		e.FitnessIndex, e.Source, string(e.Confidence), e.Notes)
	return err
}

// CommitBaseline implements HistoryStore.
func (s *SQLiteStore) CommitBaseline(ctx context.Context, athleteID string, value float64, entry model.VdotHistoryEntry) error {
	if entry.AthleteID != athleteID {
		return fmt.Errorf("%w: entry belongs to %q", ErrInvalidRecord, entry.AthleteID)
	}
	defer observeUpdate(time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureAthlete(ctx, tx, athleteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE athletes SET stored_index = ? WHERE athlete_id = ?`,
			value, athleteID); err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
}

// ReplaceHistory implements HistoryStore.
func (s *SQLiteStore) ReplaceHistory(ctx context.Context, athleteID string, entries []model.VdotHistoryEntry) error {
	if err := validateHistory(athleteID, entries); err != nil {
		return err
	}
	defer observeUpdate(time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureAthlete(ctx, tx, athleteID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE athlete_id = ?`, athleteID); err != nil {
			return err
		}
		for _, e := range entries {
			if err := insertHistory(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// History implements HistoryStore.
func (s *SQLiteStore) History(ctx context.Context, athleteID string) ([]model.VdotHistoryEntry, error) {
	defer observeQuery(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id, date_ns, fitness_index, source, confidence, notes
		FROM history WHERE athlete_id = ? ORDER BY date_ns`, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.VdotHistoryEntry
	for rows.Next() {
		var (
			e    = model.VdotHistoryEntry{AthleteID: athleteID}
			ns   int64
			conf string
		)
		if err := rows.Scan(&e.ID, &ns, &e.FitnessIndex, &e.Source, &conf, &e.Notes); err != nil {
			return nil, err
		}
		e.Date = time.Unix(0, ns).UTC()
		e.Confidence = types.Tier(conf)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Athletes implements Store.
func (s *SQLiteStore) Athletes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT athlete_id FROM athletes ORDER BY athlete_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
