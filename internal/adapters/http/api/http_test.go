package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/pacer/internal/adapters/fitfile"
	"github.com/okian/pacer/internal/adapters/http/api"
	"github.com/okian/pacer/internal/adapters/mq/queue"
	"github.com/okian/pacer/internal/adapters/repository"
	service "github.com/okian/pacer/internal/app"
	"github.com/okian/pacer/internal/domain/backtest"
	"github.com/okian/pacer/internal/domain/baseline"
	"github.com/okian/pacer/internal/domain/engine"
	"github.com/okian/pacer/internal/domain/fusion"
	"github.com/okian/pacer/internal/domain/load"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/segment"
	"github.com/okian/pacer/internal/domain/signals"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDeps records what handlers pass on and returns canned answers.
type mockDeps struct {
	workouts []model.Workout
	races    []model.RaceResult
	settings []model.AthleteSettings

	prediction *fusion.MultiSignalPrediction
	predictErr error
	asOf       time.Time
	recalcErr  error
	enqueueErr error
	history    []model.VdotHistoryEntry
	exportErr  error
}

func (m *mockDeps) PutSettings(_ context.Context, s model.AthleteSettings) error {
	m.settings = append(m.settings, s)
	return nil
}

func (m *mockDeps) AddWorkout(_ context.Context, w model.Workout) (model.Workout, error) {
	w.ID = fmt.Sprintf("w%d", len(m.workouts)+1)
	m.workouts = append(m.workouts, w)
	return w, nil
}

func (m *mockDeps) AddRace(_ context.Context, r model.RaceResult) (model.RaceResult, error) {
	r.ID = "r1"
	m.races = append(m.races, r)
	return r, nil
}

func (m *mockDeps) PutStream(_ context.Context, _ string, s model.Stream) error {
	if s.WorkoutID != "w1" {
		return fmt.Errorf("workout %s: %w", s.WorkoutID, repository.ErrNotFound)
	}
	return nil
}

func (m *mockDeps) ImportFIT(_ context.Context, _ string, r io.Reader, _ types.WorkoutType) (model.Workout, error) {
	_, _ = io.ReadAll(r)
	return model.Workout{}, fmt.Errorf("%w: bad header", fitfile.ErrDecode)
}

func (m *mockDeps) Predict(_ context.Context, athleteID string, asOf time.Time) (engine.Result, error) {
	m.asOf = asOf
	if m.predictErr != nil {
		return engine.Result{}, m.predictErr
	}
	return engine.Result{
		Prediction: m.prediction,
		Outcome:    signals.Outcome{Absent: []signals.Name{signals.HRCapacity}},
	}, nil
}

func (m *mockDeps) TrainingLoad(_ context.Context, _ string, from, to time.Time) (load.Snapshot, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return load.Snapshot{}, load.ErrInvalidWindow
	}
	return load.Snapshot{From: from, To: to, NoData: true}, nil
}

func (m *mockDeps) BestSegment(_ context.Context, _, workoutID string) (segment.Result, error) {
	if workoutID == "walk" {
		return segment.Result{}, segment.ErrNoQualifyingWindow
	}
	return segment.Result{Best: segment.Candidate{PaceSecondsPerMile: 360}, WindowsEvaluated: 42}, nil
}

func (m *mockDeps) Recalculate(_ context.Context, athleteID string, raw bool) (service.Recalculation, error) {
	if m.recalcErr != nil {
		return service.Recalculation{}, m.recalcErr
	}
	return service.Recalculation{
		Decision: baseline.Decision{Value: 50, Direction: baseline.DirectionInitial},
		Entry:    model.VdotHistoryEntry{AthleteID: athleteID, FitnessIndex: 50},
	}, nil
}

func (m *mockDeps) EnqueueRecalculate(_ context.Context, athleteID string, raw bool) (queue.Job, error) {
	if m.enqueueErr != nil {
		return queue.Job{}, m.enqueueErr
	}
	return queue.Job{ID: "job-1", AthleteID: athleteID, Kind: queue.KindRecalculate, Raw: raw}, nil
}

func (m *mockDeps) Backtest(_ context.Context, athleteID string) (backtest.Report, error) {
	if athleteID == "empty" {
		return backtest.Report{}, backtest.ErrNoActivity
	}
	return backtest.Report{AthleteID: athleteID, Processed: 3}, nil
}

func (m *mockDeps) EnqueueBacktest(_ context.Context, athleteID string) (queue.Job, error) {
	return queue.Job{ID: "job-2", AthleteID: athleteID, Kind: queue.KindBacktest}, nil
}

func (m *mockDeps) History(context.Context, string) ([]model.VdotHistoryEntry, error) {
	return m.history, nil
}

func (m *mockDeps) ExportHistory(_ context.Context, _ string, w io.Writer) (int, error) {
	n, err := w.Write([]byte("PAR1"))
	if err != nil {
		return n, err
	}
	return n, m.exportErr
}

func (m *mockDeps) PaceZones(context.Context, string) (vdot.PaceZones, error) {
	if m.prediction == nil {
		return vdot.PaceZones{}, service.ErrInsufficientData
	}
	return vdot.ToPaceZones(m.prediction.BlendedFitnessIndex)
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} { return map[string]interface{}{"started": true} }

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return out
}

func TestIngestHandlers(t *testing.T) {
	Convey("Given the API over mock dependencies", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When posting a valid workout", func() {
			rec := do(mux, http.MethodPost, "/athletes/a1/workouts",
				`{"date":"2024-03-01T07:00:00Z","distance_miles":5,"duration_minutes":40,"workout_type":"easy"}`)

			Convey("Then it is stored under the path athlete", func() {
				So(rec.Code, ShouldEqual, http.StatusCreated)
				So(deps.workouts, ShouldHaveLength, 1)
				So(deps.workouts[0].AthleteID, ShouldEqual, "a1")
				So(decodeBody(rec)["id"], ShouldEqual, "w1")
			})
		})

		Convey("When posting a workout that breaks the rules", func() {
			rec := do(mux, http.MethodPost, "/athletes/a1/workouts",
				`{"distance_miles":-1,"duration_minutes":0,"workout_type":"jog"}`)

			Convey("Then every failed field is reported", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				body := decodeBody(rec)
				So(body["code"], ShouldEqual, "validation_failed")
				fields := map[string]bool{}
				for _, e := range body["errors"].([]any) {
					fields[e.(map[string]any)["field"].(string)] = true
				}
				So(fields, ShouldContainKey, "date")
				So(fields, ShouldContainKey, "distance_miles")
				So(fields, ShouldContainKey, "duration_minutes")
				So(fields, ShouldContainKey, "workout_type")
				So(deps.workouts, ShouldBeEmpty)
			})
		})

		Convey("When posting a race without an effort level", func() {
			rec := do(mux, http.MethodPost, "/athletes/a1/races",
				`{"date":"2024-03-01T07:00:00Z","distance_meters":5000,"finish_time_seconds":1200}`)
			So(rec.Code, ShouldEqual, http.StatusCreated)
			So(deps.races[0].EffortLevel, ShouldEqual, types.EffortAllOut)
		})

		Convey("When posting malformed JSON or unknown fields", func() {
			So(do(mux, http.MethodPost, "/athletes/a1/races", `{`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPut, "/athletes/a1/settings", `{"vo2":60}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When putting settings with an implausible resting HR", func() {
			rec := do(mux, http.MethodPut, "/athletes/a1/settings", `{"resting_hr":150,"max_hr":190}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.settings, ShouldBeEmpty)
		})

		Convey("When putting settings with a stored index outside the model range", func() {
			for _, body := range []string{
				`{"stored_fitness_index":14.9}`,
				`{"stored_fitness_index":85.1}`,
				`{"stored_fitness_index":200}`,
			} {
				rec := do(mux, http.MethodPut, "/athletes/a1/settings", body)
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeBody(rec)["code"], ShouldEqual, "validation_failed")
			}
			So(deps.settings, ShouldBeEmpty)
		})

		Convey("When putting settings with a stored index at the range edges", func() {
			for _, body := range []string{`{"stored_fitness_index":15}`, `{"stored_fitness_index":85}`} {
				So(do(mux, http.MethodPut, "/athletes/a1/settings", body).Code, ShouldEqual, http.StatusOK)
			}
			So(deps.settings, ShouldHaveLength, 2)
		})

		Convey("When putting a stream for an unknown workout", func() {
			rec := do(mux, http.MethodPut, "/athletes/a1/workouts/w9/stream",
				`{"distance_miles":[0,0.1],"time_seconds":[0,36]}`)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(decodeBody(rec)["code"], ShouldEqual, "not_found")
		})

		Convey("When uploading an unreadable FIT file", func() {
			So(do(mux, http.MethodPost, "/athletes/a1/activities?type=tempo", "junk").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/athletes/a1/activities?type=jog", "junk").Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestEstimateHandlers(t *testing.T) {
	Convey("Given an athlete without enough evidence", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When asking for a prediction", func() {
			rec := do(mux, http.MethodGet, "/athletes/a1/prediction?as_of=2024-05-01", "")

			Convey("Then the answer is a normal insufficient_data result", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(rec)
				So(body["status"], ShouldEqual, "insufficient_data")
				So(body["prediction"], ShouldBeNil)
				So(body["signals_absent"], ShouldResemble, []any{"hr_capacity"})
				So(deps.asOf.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})

		Convey("When recalculating or asking for zones", func() {
			deps.recalcErr = service.ErrInsufficientData
			So(decodeBody(do(mux, http.MethodPost, "/athletes/a1/recalculate", ""))["status"], ShouldEqual, "insufficient_data")
			So(decodeBody(do(mux, http.MethodGet, "/athletes/a1/zones", ""))["status"], ShouldEqual, "insufficient_data")
		})

		Convey("When the athlete is unknown", func() {
			deps.predictErr = fmt.Errorf("load evidence: %w", repository.ErrNotFound)
			So(do(mux, http.MethodGet, "/athletes/zz/prediction", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When as_of is malformed", func() {
			So(do(mux, http.MethodGet, "/athletes/a1/prediction?as_of=yesterday", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given an athlete with a fused prediction", t, func() {
		deps := &mockDeps{prediction: &fusion.MultiSignalPrediction{BlendedFitnessIndex: 50, Confidence: types.TierMedium}}
		mux := newMux(deps)

		Convey("Then the prediction and zones are returned", func() {
			body := decodeBody(do(mux, http.MethodGet, "/athletes/a1/prediction", ""))
			So(body["status"], ShouldEqual, "ok")
			So(body["prediction"].(map[string]any)["blended_fitness_index"], ShouldEqual, 50.0)

			zones := decodeBody(do(mux, http.MethodGet, "/athletes/a1/zones", ""))
			So(zones["status"], ShouldEqual, "ok")
			So(zones["threshold"], ShouldBeGreaterThan, 0)
		})

		Convey("Then recalculation runs synchronously by default", func() {
			rec := do(mux, http.MethodPost, "/athletes/a1/recalculate?raw=true", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(rec)["decision"], ShouldNotBeNil)
		})

		Convey("Then async recalculation is queued", func() {
			rec := do(mux, http.MethodPost, "/athletes/a1/recalculate?async=true", "")
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(decodeBody(rec)["job_id"], ShouldEqual, "job-1")
		})

		Convey("Then a full queue answers with backpressure", func() {
			deps.enqueueErr = service.ErrQueueFull
			So(do(mux, http.MethodPost, "/athletes/a1/recalculate?async=1", "").Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("Then a duplicate pending job conflicts", func() {
			deps.enqueueErr = fmt.Errorf("%w: recalculate|a1", service.ErrAlreadyQueued)
			rec := do(mux, http.MethodPost, "/athletes/a1/recalculate?async=true", "")
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(decodeBody(rec)["code"], ShouldEqual, "already_queued")
		})

		Convey("Then backtests report or reject", func() {
			So(decodeBody(do(mux, http.MethodPost, "/athletes/a1/backtest", ""))["processed"], ShouldEqual, 3.0)
			So(do(mux, http.MethodPost, "/athletes/empty/backtest", "").Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(do(mux, http.MethodPost, "/athletes/a1/backtest?async=true", "").Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("Then best segments map search failures to 422", func() {
			So(do(mux, http.MethodGet, "/athletes/a1/workouts/w1/best-segment", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, http.MethodGet, "/athletes/a1/workouts/walk/best-segment", "").Code, ShouldEqual, http.StatusUnprocessableEntity)
		})

		Convey("Then an inverted load window is rejected", func() {
			So(do(mux, http.MethodGet, "/athletes/a1/load?from=2024-05-01&to=2024-04-01", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/athletes/a1/load", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestHistoryAndOps(t *testing.T) {
	Convey("Given an athlete with history", t, func() {
		deps := &mockDeps{history: []model.VdotHistoryEntry{{AthleteID: "a1", FitnessIndex: 49.8}}}
		mux := newMux(deps)

		Convey("Then history is listed and exported", func() {
			So(do(mux, http.MethodGet, "/athletes/a1/history", "").Code, ShouldEqual, http.StatusOK)
			rec := do(mux, http.MethodGet, "/athletes/a1/history/export", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldEqual, "application/vnd.apache.parquet")
			So(rec.Body.String(), ShouldEqual, "PAR1")
		})

		Convey("Then an export failing midway answers with a JSON error only", func() {
			deps.exportErr = errors.New("disk full")
			rec := do(mux, http.MethodGet, "/athletes/a1/history/export", "")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			So(rec.Header().Get("Content-Type"), ShouldNotEqual, "application/vnd.apache.parquet")
			So(rec.Header().Get("Content-Disposition"), ShouldBeEmpty)
			So(rec.Body.String(), ShouldNotContainSubstring, "PAR1")
			So(decodeBody(rec)["code"], ShouldEqual, "internal_error")
		})

		Convey("Then an empty history has nothing to export", func() {
			deps.history = nil
			So(do(mux, http.MethodGet, "/athletes/a1/history/export", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then health, stats and metrics respond", func() {
			So(decodeBody(do(mux, http.MethodGet, "/healthz", ""))["status"], ShouldEqual, "ok")
			So(decodeBody(do(mux, http.MethodGet, "/stats", ""))["started"], ShouldBeTrue)
			So(do(mux, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then wrong methods are refused", func() {
			So(do(mux, http.MethodDelete, "/athletes/a1/history", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
