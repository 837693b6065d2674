// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	service "github.com/okian/pacer/internal/app"
	"github.com/okian/pacer/internal/adapters/export"
	"github.com/okian/pacer/internal/adapters/mq/queue"
	"github.com/okian/pacer/internal/adapters/repository"
	"github.com/okian/pacer/internal/domain/backtest"
	"github.com/okian/pacer/internal/domain/engine"
	"github.com/okian/pacer/internal/domain/load"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/segment"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
)

// maxBodyBytes bounds JSON and FIT request bodies.
const maxBodyBytes = 32 << 20

// AthleteDependencies ingest athlete records.
type AthleteDependencies interface {
	PutSettings(ctx context.Context, s model.AthleteSettings) error
	AddWorkout(ctx context.Context, w model.Workout) (model.Workout, error)
	AddRace(ctx context.Context, r model.RaceResult) (model.RaceResult, error)
	PutStream(ctx context.Context, athleteID string, s model.Stream) error
	ImportFIT(ctx context.Context, athleteID string, r io.Reader, wt types.WorkoutType) (model.Workout, error)
}

// EstimateDependencies compute fitness estimates and history.
type EstimateDependencies interface {
	Predict(ctx context.Context, athleteID string, asOf time.Time) (engine.Result, error)
	TrainingLoad(ctx context.Context, athleteID string, from, to time.Time) (load.Snapshot, error)
	BestSegment(ctx context.Context, athleteID, workoutID string) (segment.Result, error)
	Recalculate(ctx context.Context, athleteID string, raw bool) (service.Recalculation, error)
	EnqueueRecalculate(ctx context.Context, athleteID string, raw bool) (queue.Job, error)
	Backtest(ctx context.Context, athleteID string) (backtest.Report, error)
	EnqueueBacktest(ctx context.Context, athleteID string) (queue.Job, error)
	History(ctx context.Context, athleteID string) ([]model.VdotHistoryEntry, error)
	ExportHistory(ctx context.Context, athleteID string, w io.Writer) (int, error)
	PaceZones(ctx context.Context, athleteID string) (vdot.PaceZones, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AthleteDependencies
	EstimateDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	athleteHandler  *AthleteHandler
	estimateHandler *EstimateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		athleteHandler:  NewAthleteHandler(deps),
		estimateHandler: NewEstimateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("PUT /athletes/{id}/settings", "settings", s.athleteHandler.HandlePutSettings)
	route("POST /athletes/{id}/workouts", "workouts", s.athleteHandler.HandlePostWorkout)
	route("POST /athletes/{id}/races", "races", s.athleteHandler.HandlePostRace)
	route("PUT /athletes/{id}/workouts/{wid}/stream", "stream", s.athleteHandler.HandlePutStream)
	route("POST /athletes/{id}/activities", "activities", s.athleteHandler.HandlePostActivity)

	route("GET /athletes/{id}/prediction", "prediction", s.estimateHandler.HandlePrediction)
	route("GET /athletes/{id}/load", "load", s.estimateHandler.HandleLoad)
	route("GET /athletes/{id}/workouts/{wid}/best-segment", "best_segment", s.estimateHandler.HandleBestSegment)
	route("POST /athletes/{id}/recalculate", "recalculate", s.estimateHandler.HandleRecalculate)
	route("POST /athletes/{id}/backtest", "backtest", s.estimateHandler.HandleBacktest)
	route("GET /athletes/{id}/history", "history", s.estimateHandler.HandleHistory)
	route("GET /athletes/{id}/history/export", "history_export", s.estimateHandler.HandleExport)
	route("GET /athletes/{id}/zones", "zones", s.estimateHandler.HandleZones)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain errors onto HTTP statuses.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, export.ErrNoEntries):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, repository.ErrNotFound, err))
	case errors.Is(err, repository.ErrInvalidRecord), errors.Is(err, load.ErrInvalidWindow), errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "already_queued", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, vdot.ErrIndexOutOfRange),
		errors.Is(err, segment.ErrNoQualifyingWindow),
		errors.Is(err, segment.ErrInsufficientPoints),
		errors.Is(err, segment.ErrMismatchedStreams),
		errors.Is(err, backtest.ErrNoActivity):
		writeError(w, http.StatusUnprocessableEntity, "unprocessable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return false
	}
	return true
}

// valid validates v, writing a 400 with every failed field when it is not.
func valid(w http.ResponseWriter, op string, v any) bool {
	fields, err := check(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return false
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Code:    "validation_failed",
			Message: NewKind(op, ErrBadRequest).Error(),
			Errors:  fields,
		})
		return false
	}
	return true
}

// parseTime accepts RFC3339 timestamps or plain dates. An empty value
// yields the zero time.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC3339 or YYYY-MM-DD")
	}
	return t.UTC(), nil
}
