package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	service "github.com/okian/pacer/internal/app"
	"github.com/okian/pacer/internal/domain/fusion"
	"github.com/okian/pacer/internal/domain/signals"
	"github.com/okian/pacer/internal/domain/vdot"
)

// Response statuses for estimate endpoints.
const (
	statusOK               = "ok"
	statusInsufficientData = "insufficient_data"
	statusQueued           = "queued"
)

// EstimateHandler serves predictions, load, history and jobs.
type EstimateHandler struct {
	deps EstimateDependencies
}

// NewEstimateHandler creates a new estimate handler.
func NewEstimateHandler(deps EstimateDependencies) *EstimateHandler {
	return &EstimateHandler{deps: deps}
}

type predictionResponse struct {
	Status        string                        `json:"status"`
	AthleteID     string                        `json:"athlete_id"`
	AsOf          time.Time                     `json:"as_of"`
	Prediction    *fusion.MultiSignalPrediction `json:"prediction,omitempty"`
	SignalsFailed []signals.Name                `json:"signals_failed,omitempty"`
	SignalsAbsent []signals.Name                `json:"signals_absent,omitempty"`
}

// HandlePrediction handles GET /athletes/{id}/prediction?as_of=.
// Missing evidence is a normal answer, not an error.
func (h *EstimateHandler) HandlePrediction(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_prediction"
	asOf, err := parseTime(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := r.PathValue("id")
	res, err := h.deps.Predict(r.Context(), id, asOf)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	out := predictionResponse{
		Status:        statusOK,
		AthleteID:     id,
		AsOf:          asOf,
		Prediction:    res.Prediction,
		SignalsFailed: res.Outcome.Failed,
		SignalsAbsent: res.Outcome.Absent,
	}
	if res.Prediction == nil {
		out.Status = statusInsufficientData
	} else {
		out.AsOf = res.Prediction.AsOf
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleLoad handles GET /athletes/{id}/load?from=&to=.
func (h *EstimateHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_load"
	q := r.URL.Query()
	from, errFrom := parseTime(q.Get("from"))
	to, errTo := parseTime(q.Get("to"))
	if err := errors.Join(errFrom, errTo); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap, err := h.deps.TrainingLoad(r.Context(), r.PathValue("id"), from, to)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleBestSegment handles GET /athletes/{id}/workouts/{wid}/best-segment.
func (h *EstimateHandler) HandleBestSegment(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_best_segment"
	res, err := h.deps.BestSegment(r.Context(), r.PathValue("id"), r.PathValue("wid"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type recalculationResponse struct {
	Status string `json:"status"`
	*service.Recalculation
}

type jobResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
}

// asyncRequested reports whether ?async=true was passed.
func asyncRequested(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("async")
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// HandleRecalculate handles POST /athletes/{id}/recalculate?raw=&async=.
func (h *EstimateHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_recalculate"
	raw := false
	if v := r.URL.Query().Get("raw"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		raw = b
	}
	async, err := asyncRequested(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := r.PathValue("id")

	if async {
		job, err := h.deps.EnqueueRecalculate(r.Context(), id, raw)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusAccepted, jobResponse{Status: statusQueued, JobID: job.ID, Kind: string(job.Kind)})
		return
	}

	rec, err := h.deps.Recalculate(r.Context(), id, raw)
	if errors.Is(err, service.ErrInsufficientData) {
		writeJSON(w, http.StatusOK, recalculationResponse{Status: statusInsufficientData})
		return
	}
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, recalculationResponse{Status: statusOK, Recalculation: &rec})
}

// HandleBacktest handles POST /athletes/{id}/backtest?async=.
func (h *EstimateHandler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_backtest"
	async, err := asyncRequested(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := r.PathValue("id")
	if async {
		job, err := h.deps.EnqueueBacktest(r.Context(), id)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusAccepted, jobResponse{Status: statusQueued, JobID: job.ID, Kind: string(job.Kind)})
		return
	}
	rep, err := h.deps.Backtest(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleHistory handles GET /athletes/{id}/history.
func (h *EstimateHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	entries, err := h.deps.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleExport handles GET /athletes/{id}/history/export and returns the
// history as a parquet file. The file is built in memory so a failed export
// still gets a JSON error instead of a truncated body.
func (h *EstimateHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_history"
	id := r.PathValue("id")
	entries, err := h.deps.History(r.Context(), id)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "not_found", errors.New("athlete has no history"))
		return
	}
	var buf bytes.Buffer
	if _, err := h.deps.ExportHistory(r.Context(), id, &buf); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`-history.parquet"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type zonesResponse struct {
	Status string `json:"status"`
	Label  string `json:"label,omitempty"`
	*vdot.PaceZones
}

// HandleZones handles GET /athletes/{id}/zones.
func (h *EstimateHandler) HandleZones(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_zones"
	z, err := h.deps.PaceZones(r.Context(), r.PathValue("id"))
	if errors.Is(err, service.ErrInsufficientData) {
		writeJSON(w, http.StatusOK, zonesResponse{Status: statusInsufficientData})
		return
	}
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, zonesResponse{Status: statusOK, Label: vdot.Label(z.Index), PaceZones: &z})
}
