package api

import (
	"errors"
	"net/http"

	"github.com/okian/pacer/internal/adapters/fitfile"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
)

// AthleteHandler handles record ingestion.
type AthleteHandler struct {
	deps AthleteDependencies
}

// NewAthleteHandler creates a new athlete handler.
func NewAthleteHandler(deps AthleteDependencies) *AthleteHandler {
	return &AthleteHandler{deps: deps}
}

// HandlePutSettings handles PUT /athletes/{id}/settings.
func (h *AthleteHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_settings"
	var req model.AthleteSettings
	if !decode(w, r, op, &req) {
		return
	}
	req.AthleteID = r.PathValue("id")
	if !valid(w, op, req) {
		return
	}
	if err := h.deps.PutSettings(r.Context(), req); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// HandlePostWorkout handles POST /athletes/{id}/workouts.
func (h *AthleteHandler) HandlePostWorkout(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_workout"
	var req model.Workout
	if !decode(w, r, op, &req) {
		return
	}
	req.AthleteID = r.PathValue("id")
	if !valid(w, op, req) {
		return
	}
	if req.WorkoutType == "" {
		req.WorkoutType = types.WorkoutOther
	}
	out, err := h.deps.AddWorkout(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandlePostRace handles POST /athletes/{id}/races. A missing effort
// level is recorded as all-out.
func (h *AthleteHandler) HandlePostRace(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_race"
	var req model.RaceResult
	if !decode(w, r, op, &req) {
		return
	}
	req.AthleteID = r.PathValue("id")
	if !valid(w, op, req) {
		return
	}
	if req.EffortLevel == "" {
		req.EffortLevel = types.EffortAllOut
	}
	out, err := h.deps.AddRace(r.Context(), req)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// HandlePutStream handles PUT /athletes/{id}/workouts/{wid}/stream.
func (h *AthleteHandler) HandlePutStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_stream"
	var req model.Stream
	if !decode(w, r, op, &req) {
		return
	}
	req.WorkoutID = r.PathValue("wid")
	if !valid(w, op, req) {
		return
	}
	if err := h.deps.PutStream(r.Context(), r.PathValue("id"), req); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activityQuery struct {
	Type types.WorkoutType `json:"type" validate:"omitempty,oneof=recovery easy long steady tempo threshold interval race cross other"`
}

// HandlePostActivity handles POST /athletes/{id}/activities with a FIT
// file as the body. The optional type query parameter classifies the run.
func (h *AthleteHandler) HandlePostActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_activity"
	q := activityQuery{Type: types.WorkoutType(r.URL.Query().Get("type"))}
	if !valid(w, op, q) {
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	out, err := h.deps.ImportFIT(r.Context(), r.PathValue("id"), body, q.Type)
	if err != nil {
		if errors.Is(err, fitfile.ErrDecode) || errors.Is(err, fitfile.ErrNoSession) || errors.Is(err, fitfile.ErrNotRunning) {
			err = WrapKind(op, ErrBadRequest, err)
		}
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}
