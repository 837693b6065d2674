package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/engine"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/signals"
	"github.com/okian/pacer/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type stalled struct{}

func (stalled) Name() signals.Name { return signals.HRCapacity }

func (stalled) Generate(ctx context.Context, _ model.Evidence) (*signals.Signal, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixed struct {
	name signals.Name
	idx  float64
}

func (f fixed) Name() signals.Name { return f.name }

func (f fixed) Generate(context.Context, model.Evidence) (*signals.Signal, error) {
	return &signals.Signal{Name: f.name, EstimatedFitnessIndex: f.idx, Confidence: 0.9, Weight: 1}, nil
}

func TestEstimate(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	e := engine.New(coeffs.Default())

	Convey("Given a recent 20-minute 5K", t, func() {
		ev := model.Evidence{
			AthleteID: "a1",
			AsOf:      asOf,
			Races:     []model.RaceResult{{ID: "r1", Date: asOf.AddDate(0, 0, -10), DistanceMeters: 5000, FinishTimeSeconds: 1200}},
		}
		res, err := e.Estimate(ctx, ev)

		Convey("Then the race alone carries a low-confidence prediction", func() {
			So(err, ShouldBeNil)
			So(res.Prediction, ShouldNotBeNil)
			So(res.Prediction.BlendedFitnessIndex, ShouldAlmostEqual, 49.8, 0.05)
			So(res.Prediction.Confidence, ShouldEqual, types.TierLow)
			So(res.Outcome.Signals, ShouldHaveLength, 1)
			So(res.Outcome.Absent, ShouldHaveLength, 5)
		})
	})

	Convey("Given a race dated after the as-of time", t, func() {
		ev := model.Evidence{
			AthleteID: "a1",
			AsOf:      asOf,
			Races:     []model.RaceResult{{ID: "r1", Date: asOf.AddDate(0, 0, 3), DistanceMeters: 5000, FinishTimeSeconds: 1200}},
		}
		res, err := e.Estimate(ctx, ev)

		Convey("Then it is invisible and nothing can be estimated", func() {
			So(err, ShouldBeNil)
			So(res.Prediction, ShouldBeNil)
			So(res.Outcome.Absent, ShouldHaveLength, len(signals.Order))
		})
	})

	Convey("Given evidence with no as-of time", t, func() {
		_, err := e.Estimate(ctx, model.Evidence{AthleteID: "a1"})
		So(errors.Is(err, engine.ErrMissingAsOf), ShouldBeTrue)
	})

	Convey("Given a custom generator set with one that stalls", t, func() {
		custom := engine.New(coeffs.Default(),
			engine.WithGenerators(fixed{signals.Race, 50}, fixed{signals.BestEffort, 51}, stalled{}),
			engine.WithGeneratorTimeout(20*time.Millisecond))
		res, err := custom.Estimate(ctx, model.Evidence{AthleteID: "a1", AsOf: asOf})

		Convey("Then the stalled signal is reported failed and the rest are fused", func() {
			So(err, ShouldBeNil)
			So(res.Prediction.BlendedFitnessIndex, ShouldAlmostEqual, 50.5, 1e-9)
			So(res.Prediction.DataQuality.SignalsFailed, ShouldResemble, []signals.Name{signals.HRCapacity})
		})
	})
}
