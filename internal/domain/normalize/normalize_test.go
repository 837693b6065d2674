package normalize_test

import (
	"errors"
	"testing"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/normalize"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
	. "github.com/smartystreets/goconvey/convey"
)

func ptr(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	n := normalize.New(coeffs.Default().Normalizer)

	Convey("Given an all-out 5K in 20:00 without context", t, func() {
		e := model.Effort{DistanceMeters: 5000, DurationSeconds: 1200, EffortLevel: types.EffortAllOut}
		got, err := n.Normalize(e, nil)

		Convey("Then nothing is adjusted and the index is about 49.8", func() {
			So(err, ShouldBeNil)
			So(got.EquivalentTimeSeconds, ShouldEqual, 1200.0)
			So(got.EquivalentFitnessIndex, ShouldAlmostEqual, 49.8, 0.05)
			So(got.WeatherAdjustSecPerMile, ShouldEqual, 0.0)
			So(got.ElevationAdjustSecPerMile, ShouldEqual, 0.0)
		})

		Convey("Then missing context still leaves an all-out effort high confidence", func() {
			So(got.Confidence, ShouldEqual, types.TierHigh)
			So(got.ConfidenceWeight, ShouldEqual, 1.0)
		})
	})

	Convey("Given the same race run in the heat", t, func() {
		e := model.Effort{
			DistanceMeters: 5000, DurationSeconds: 1200, EffortLevel: types.EffortAllOut,
			WeatherTempF: ptr(80), WeatherHumidityPct: ptr(70), ElevationGainFt: ptr(0),
		}
		got, err := n.Normalize(e, nil)

		Convey("Then the penalty scales with heat and humidity", func() {
			So(err, ShouldBeNil)
			So(got.WeatherAdjustSecPerMile, ShouldAlmostEqual, 20*0.8*1.2, 1e-9)
			So(got.EquivalentTimeSeconds, ShouldBeLessThan, 1200)
			So(got.EquivalentFitnessIndex, ShouldBeGreaterThan, 49.8)
		})

		Convey("Then the source effort is untouched", func() {
			So(e.DurationSeconds, ShouldEqual, 1200.0)
			So(*e.WeatherTempF, ShouldEqual, 80.0)
		})
	})

	Convey("Given a cool day", t, func() {
		got, err := n.Normalize(model.Effort{DistanceMeters: 5000, DurationSeconds: 1200, WeatherTempF: ptr(55)}, nil)
		So(err, ShouldBeNil)
		So(got.WeatherAdjustSecPerMile, ShouldEqual, 0.0)
	})

	Convey("Given extreme climbing on an easy effort", t, func() {
		e := model.Effort{
			DistanceMeters: 5000, DurationSeconds: 1200, EffortLevel: types.EffortEasy,
			ElevationGainFt: ptr(5000), WeatherTempF: ptr(95),
		}
		got, err := n.Normalize(e, nil)

		Convey("Then the equivalent time never drops below 82% of the raw time", func() {
			So(err, ShouldBeNil)
			So(got.EquivalentTimeSeconds, ShouldAlmostEqual, 0.82*1200, 1e-9)
			So(got.EffortMultiplier, ShouldEqual, 0.93)
		})
	})

	Convey("Given a hard effort linked to a workout that recorded the weather", t, func() {
		w := &model.Workout{WeatherTempF: ptr(75), ElevationGainFt: ptr(120)}
		e := model.Effort{DistanceMeters: 10000, DurationSeconds: 2700, EffortLevel: types.EffortHard}
		got, err := n.Normalize(e, w)

		Convey("Then the linked context is used", func() {
			So(err, ShouldBeNil)
			So(got.WeatherAdjustSecPerMile, ShouldBeGreaterThan, 0)
			So(got.ElevationAdjustSecPerMile, ShouldBeGreaterThan, 0)
		})

		Convey("Then full context keeps the hard effort at high confidence", func() {
			So(got.Confidence, ShouldEqual, types.TierHigh)
		})

		Convey("Without the link the same effort drops to medium", func() {
			bare, err := n.Normalize(e, nil)
			So(err, ShouldBeNil)
			So(bare.Confidence, ShouldEqual, types.TierMedium)
			So(bare.ConfidenceWeight, ShouldEqual, 0.85)
		})
	})

	Convey("Given an easy effort without context", t, func() {
		got, err := n.Normalize(model.Effort{DistanceMeters: 5000, DurationSeconds: 1500, EffortLevel: types.EffortEasy}, nil)
		So(err, ShouldBeNil)
		So(got.Confidence, ShouldEqual, types.TierLow)
		So(got.ConfidenceWeight, ShouldEqual, 0.7)
	})

	Convey("Given contract violations", t, func() {
		_, err := n.Normalize(model.Effort{DistanceMeters: 0, DurationSeconds: 1200}, nil)
		So(errors.Is(err, vdot.ErrInvalidEffort), ShouldBeTrue)

		_, err = n.Normalize(model.Effort{DistanceMeters: 5000, DurationSeconds: 1200, EffortLevel: "sleepy"}, nil)
		So(errors.Is(err, normalize.ErrUnknownEffortLevel), ShouldBeTrue)
	})

	Convey("Given an implausibly fast effort", t, func() {
		_, err := n.Normalize(model.Effort{DistanceMeters: 5000, DurationSeconds: 600}, nil)
		So(errors.Is(err, vdot.ErrIndexOutOfRange), ShouldBeTrue)
	})
}
