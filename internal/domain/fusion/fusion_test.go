package fusion_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/fusion"
	"github.com/okian/pacer/internal/domain/signals"
	"github.com/okian/pacer/internal/domain/types"
	"github.com/okian/pacer/internal/domain/vdot"
	. "github.com/smartystreets/goconvey/convey"
)

var asOf = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func sig(name signals.Name, idx, conf, weight float64) signals.Signal {
	return signals.Signal{Name: name, EstimatedFitnessIndex: idx, Confidence: conf, Weight: weight}
}

func TestFuse(t *testing.T) {
	f := fusion.New(coeffs.Default().Fusion)

	Convey("Given no signals", t, func() {
		p, err := f.Fuse(signals.Outcome{Absent: signals.Order}, asOf)
		So(p, ShouldBeNil)
		So(errors.Is(err, fusion.ErrNoSignals), ShouldBeTrue)
	})

	Convey("Given a single race signal", t, func() {
		p, err := f.Fuse(signals.Outcome{Signals: []signals.Signal{sig(signals.Race, 49.8, 0.9, 1)}}, asOf)

		Convey("Then agreement is perfect but the tier stays low", func() {
			So(err, ShouldBeNil)
			So(p.AgreementScore, ShouldEqual, 1.0)
			So(p.Confidence, ShouldEqual, types.TierLow)
			So(p.DataQuality.SignalsUsed, ShouldEqual, 1)
		})

		Convey("Then every standard distance is predicted within its band", func() {
			So(p.Predictions, ShouldHaveLength, len(vdot.StandardDistances))
			for _, pr := range p.Predictions {
				So(pr.FastSeconds, ShouldBeLessThan, pr.TimeSeconds)
				So(pr.SlowSeconds, ShouldBeGreaterThan, pr.TimeSeconds)
			}
			So(p.Predictions[1].Distance, ShouldEqual, "5k")
			So(p.Predictions[1].TimeSeconds, ShouldAlmostEqual, 1200, 2)
		})
	})

	Convey("Given three tightly clustered signals", t, func() {
		p, err := f.Fuse(signals.Outcome{
			Signals: []signals.Signal{
				sig(signals.Race, 50, 0.9, 1),
				sig(signals.BestEffort, 50.5, 0.8, 0.85),
				sig(signals.HRCapacity, 49.5, 0.7, 0.6),
			},
			Failed: []signals.Name{signals.PaceProgression},
			Absent: []signals.Name{signals.EfficiencyTrend, signals.TrainingPace},
		}, asOf)

		Convey("Then the tier is high and quality bookkeeping is kept", func() {
			So(err, ShouldBeNil)
			So(p.Confidence, ShouldEqual, types.TierHigh)
			So(p.AgreementScore, ShouldBeGreaterThan, 0.85)
			So(p.DataQuality.SignalsUsed, ShouldEqual, 3)
			So(p.DataQuality.SignalsFailed, ShouldResemble, []signals.Name{signals.PaceProgression})
			So(p.DataQuality.SignalsAbsent, ShouldHaveLength, 2)
			So(p.BandIndexPoints, ShouldEqual, 0.5)
		})
	})

	Convey("Given two agreeing signals", t, func() {
		p, err := f.Fuse(signals.Outcome{Signals: []signals.Signal{
			sig(signals.Race, 50, 0.9, 1),
			sig(signals.BestEffort, 50.4, 0.9, 0.85),
		}}, asOf)
		So(err, ShouldBeNil)
		So(p.Confidence, ShouldEqual, types.TierMedium)
	})

	Convey("Given signals weighted by confidence and trust", t, func() {
		p, err := f.Fuse(signals.Outcome{Signals: []signals.Signal{
			sig(signals.Race, 40, 0.5, 1),
			sig(signals.TrainingPace, 60, 1, 0.5),
		}}, asOf)
		So(err, ShouldBeNil)
		So(p.BlendedFitnessIndex, ShouldAlmostEqual, 50, 1e-9)
	})

	Convey("Given three confident signals that disagree widely", t, func() {
		p, err := f.Fuse(signals.Outcome{Signals: []signals.Signal{
			sig(signals.Race, 40, 0.9, 1),
			sig(signals.BestEffort, 55, 0.9, 1),
			sig(signals.HRCapacity, 60, 0.9, 1),
		}}, asOf)

		Convey("Then low agreement forces the tier down", func() {
			So(err, ShouldBeNil)
			So(p.AgreementScore, ShouldBeLessThan, 0.4)
			So(p.Confidence, ShouldEqual, types.TierLow)
			So(p.BandIndexPoints, ShouldEqual, 4.0*2)
		})
	})

	Convey("Given a blend outside the valid domain", t, func() {
		_, err := f.Fuse(signals.Outcome{Signals: []signals.Signal{sig(signals.Race, 88, 0.9, 1)}}, asOf)
		So(errors.Is(err, vdot.ErrIndexOutOfRange), ShouldBeTrue)
	})
}
