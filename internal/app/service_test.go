package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	service "github.com/okian/pacer/internal/app"
	"github.com/okian/pacer/internal/adapters/mq/queue"
	"github.com/okian/pacer/internal/adapters/repository"
	"github.com/okian/pacer/internal/domain/baseline"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func day(m time.Month, d int) time.Time { return time.Date(2024, m, d, 8, 0, 0, 0, time.UTC) }

// seeded returns a service holding one easy run and two 5k races.
func seeded(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	ctx := context.Background()
	opts = append([]service.Option{service.WithClock(func() time.Time { return now })}, opts...)
	svc := service.New(opts...)

	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(svc.PutSettings(ctx, model.AthleteSettings{AthleteID: "a1", RestingHR: 50, MaxHR: 190, Age: 35}))
	_, err := svc.AddWorkout(ctx, model.Workout{AthleteID: "a1", Date: day(1, 5), DistanceMiles: 4, DurationMinutes: 38, WorkoutType: types.WorkoutEasy})
	must(err)
	_, err = svc.AddRace(ctx, model.RaceResult{AthleteID: "a1", Date: day(2, 10), DistanceMeters: 5000, FinishTimeSeconds: 1200, EffortLevel: types.EffortAllOut})
	must(err)
	_, err = svc.AddRace(ctx, model.RaceResult{AthleteID: "a1", Date: day(4, 20), DistanceMeters: 5000, FinishTimeSeconds: 1140, EffortLevel: types.EffortAllOut})
	must(err)
	return svc
}

func TestService_Predict(t *testing.T) {
	Convey("Given an athlete with two races", t, func() {
		svc := seeded(t)
		defer func() { _ = svc.Stop(context.Background()) }()
		ctx := context.Background()

		Convey("When predicting now", func() {
			res, err := svc.Predict(ctx, "a1", time.Time{})

			Convey("Then a fused prediction is returned", func() {
				So(err, ShouldBeNil)
				So(res.Prediction, ShouldNotBeNil)
				So(res.Prediction.BlendedFitnessIndex, ShouldBeBetween, 49, 56)
				So(res.Prediction.AsOf, ShouldEqual, now)
			})
		})

		Convey("When predicting before the first race", func() {
			res, err := svc.Predict(ctx, "a1", day(1, 31))

			Convey("Then there is not enough data", func() {
				So(err, ShouldBeNil)
				So(res.Prediction, ShouldBeNil)
				So(res.Outcome.Absent, ShouldNotBeEmpty)
			})
		})

		Convey("When predicting for an unknown athlete", func() {
			_, err := svc.Predict(ctx, "nobody", time.Time{})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Recalculate(t *testing.T) {
	Convey("Given an athlete without a stored baseline", t, func() {
		svc := seeded(t)
		defer func() { _ = svc.Stop(context.Background()) }()
		ctx := context.Background()

		Convey("When recalculating twice", func() {
			first, err1 := svc.Recalculate(ctx, "a1", false)
			second, err2 := svc.Recalculate(ctx, "a1", false)

			Convey("Then the first sets the baseline and the second keeps it", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.Decision.Direction, ShouldEqual, baseline.DirectionInitial)
				So(first.Entry.Source, ShouldEqual, model.HistorySourceInitial)
				So(second.Decision.Direction, ShouldEqual, baseline.DirectionUnchanged)
				So(second.Decision.Value, ShouldAlmostEqual, first.Decision.Value, 1e-9)
				So(second.Entry.Source, ShouldEqual, model.HistorySourceSmoothed)
			})

			Convey("Then one history entry occupies the current month", func() {
				h, err := svc.History(ctx, "a1")
				So(err, ShouldBeNil)
				So(h, ShouldHaveLength, 1)
				So(h[0].Date, ShouldEqual, model.MonthStart(now))
			})

			Convey("Then pace zones come from the stored baseline", func() {
				z, err := svc.PaceZones(ctx, "a1")
				So(err, ShouldBeNil)
				So(z.Index, ShouldAlmostEqual, first.Decision.Value, 1e-9)
				So(z.Threshold, ShouldBeLessThan, z.Easy.Fast)
			})
		})

		Convey("When the athlete has no usable evidence", func() {
			So(svc.PutSettings(ctx, model.AthleteSettings{AthleteID: "a2"}), ShouldBeNil)
			_, err := svc.Recalculate(ctx, "a2", false)
			So(errors.Is(err, service.ErrInsufficientData), ShouldBeTrue)

			_, err = svc.PaceZones(ctx, "a2")
			So(errors.Is(err, service.ErrInsufficientData), ShouldBeTrue)
		})
	})
}

func TestService_Backtest(t *testing.T) {
	Convey("Given an athlete with activity since January", t, func() {
		svc := seeded(t, service.WithBacktestConcurrency(2))
		defer func() { _ = svc.Stop(context.Background()) }()
		ctx := context.Background()

		Convey("When the history is rebuilt", func() {
			rep, err := svc.Backtest(ctx, "a1")

			Convey("Then every month from the first race is written", func() {
				So(err, ShouldBeNil)
				So(rep.Processed, ShouldEqual, 5)
				So(rep.Skipped, ShouldEqual, 1)
				h, _ := svc.History(ctx, "a1")
				So(h, ShouldHaveLength, 5)
				So(h[0].Source, ShouldEqual, model.HistorySourceBacktest)
			})

			Convey("Then the history exports as parquet", func() {
				var buf bytes.Buffer
				n, err := svc.ExportHistory(ctx, "a1", &buf)
				So(err, ShouldBeNil)
				So(n, ShouldBeGreaterThan, 0)
				So(strings.HasPrefix(buf.String(), "PAR1"), ShouldBeTrue)
			})
		})
	})
}

func TestService_TrainingLoadAndSegments(t *testing.T) {
	Convey("Given an athlete with a recorded steady run", t, func() {
		svc := seeded(t)
		defer func() { _ = svc.Stop(context.Background()) }()
		ctx := context.Background()

		w, err := svc.AddWorkout(ctx, model.Workout{AthleteID: "a1", Date: day(6, 10), DistanceMiles: 4.2, DurationMinutes: 25, WorkoutType: types.WorkoutTempo})
		So(err, ShouldBeNil)
		st := model.Stream{WorkoutID: w.ID}
		for i := range 1500 {
			st.TimeSeconds = append(st.TimeSeconds, float64(i))
			st.DistanceMiles = append(st.DistanceMiles, float64(i)/360)
			st.HeartRate = append(st.HeartRate, 163+float64(i%5))
		}
		So(svc.PutStream(ctx, "a1", st), ShouldBeNil)

		Convey("When searching its best segment", func() {
			res, err := svc.BestSegment(ctx, "a1", w.ID)
			So(err, ShouldBeNil)
			So(res.Best.PaceSecondsPerMile, ShouldAlmostEqual, 360, 0.5)
		})

		Convey("When searching a workout without samples", func() {
			_, err := svc.BestSegment(ctx, "a1", "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When computing the training load for the default window", func() {
			snap, err := svc.TrainingLoad(ctx, "a1", time.Time{}, time.Time{})
			So(err, ShouldBeNil)
			So(snap.To, ShouldEqual, model.DayStart(now))
			So(snap.From, ShouldEqual, model.DayStart(now.AddDate(0, 0, -42)))
		})
	})
}

func TestService_Jobs(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		svc := seeded(t)
		defer func() { _ = svc.Stop(context.Background()) }()

		_, err := svc.EnqueueRecalculate(context.Background(), "a1", false)
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		So(errors.Is(svc.Handle(context.Background(), queue.Job{Kind: "compact"}), service.ErrUnknownJob), ShouldBeTrue)
	})

	Convey("Given a started service", t, func() {
		svc := seeded(t, service.WithWorkerCount(2), service.WithQueueSize(8))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a recalculation is queued", func() {
			job, err := svc.EnqueueRecalculate(ctx, "a1", true)
			So(err, ShouldBeNil)
			So(job.Kind, ShouldEqual, queue.KindRecalculate)

			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then stopping drains it into the history", func() {
				h, err := svc.History(context.Background(), "a1")
				So(err, ShouldBeNil)
				So(h, ShouldHaveLength, 1)
				So(h[0].Source, ShouldEqual, model.HistorySourceInitial)
			})
		})

		Convey("When a job names an unknown athlete", func() {
			_, err := svc.EnqueueBacktest(ctx, "nobody")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(svc.Stop(ctx), ShouldBeNil)
		})

		Convey("Then stats report the worker pool", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["athletes"], ShouldEqual, 1)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}
