package vdot_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/pacer/internal/domain/vdot"
	. "github.com/smartystreets/goconvey/convey"
)

func TestToIndex(t *testing.T) {
	Convey("Given an all-out 5000 m in 20:00", t, func() {
		idx, err := vdot.ToIndex(5000, 1200)

		Convey("Then the index is about 49.8", func() {
			So(err, ShouldBeNil)
			So(idx, ShouldAlmostEqual, 49.8, 0.05)
		})

		Convey("And feeding it back returns about 1200 s", func() {
			secs, err := vdot.ToTime(idx, 5000)
			So(err, ShouldBeNil)
			So(secs, ShouldAlmostEqual, 1200, 1)
		})
	})

	Convey("Given a faster runner over the same distance", t, func() {
		slow, _ := vdot.ToIndex(5000, 1500)
		fast, _ := vdot.ToIndex(5000, 1100)
		So(fast, ShouldBeGreaterThan, slow)
	})

	Convey("Given invalid efforts", t, func() {
		for _, in := range [][2]float64{{0, 1200}, {5000, 0}, {-1, 10}, {math.NaN(), 10}, {5000, math.Inf(1)}} {
			_, err := vdot.ToIndex(in[0], in[1])
			So(errors.Is(err, vdot.ErrInvalidEffort), ShouldBeTrue)
		}
	})
}

func TestRoundTrip(t *testing.T) {
	Convey("Given every index from 20 to 75 and every standard distance", t, func() {
		Convey("Then ToIndex(ToTime(v)) stays within 0.1 of v", func() {
			for v := 20.0; v <= 75.0; v += 2.5 {
				for _, d := range vdot.StandardDistances {
					secs, err := vdot.ToTime(v, d.Meters)
					So(err, ShouldBeNil)
					got, err := vdot.ToIndex(d.Meters, secs)
					So(err, ShouldBeNil)
					So(math.Abs(got-v), ShouldBeLessThan, 0.1)
				}
			}
		})
	})
}

func TestToTimeRejects(t *testing.T) {
	Convey("Given indices outside the valid domain", t, func() {
		_, err := vdot.ToTime(10, 5000)
		So(errors.Is(err, vdot.ErrIndexOutOfRange), ShouldBeTrue)
		_, err = vdot.ToTime(90, 5000)
		So(errors.Is(err, vdot.ErrIndexOutOfRange), ShouldBeTrue)
	})

	Convey("Given a zero distance", t, func() {
		_, err := vdot.ToTime(50, 0)
		So(errors.Is(err, vdot.ErrInvalidEffort), ShouldBeTrue)
	})
}

func TestPaceZones(t *testing.T) {
	Convey("Given an index of 50", t, func() {
		z, err := vdot.ToPaceZones(50)
		So(err, ShouldBeNil)

		Convey("Then zones get faster with intensity", func() {
			So(z.Easy.Slow, ShouldBeGreaterThan, z.Easy.Fast)
			So(z.Easy.Fast, ShouldBeGreaterThan, z.Marathon)
			So(z.Marathon, ShouldBeGreaterThan, z.Steady)
			So(z.Steady, ShouldBeGreaterThan, z.Threshold)
			So(z.Threshold, ShouldBeGreaterThan, z.Interval)
			So(z.Interval, ShouldBeGreaterThan, z.Repetition)
		})

		Convey("Then threshold pace sits near 7:00 per mile", func() {
			So(z.Threshold, ShouldBeBetween, 400, 440)
		})

		Convey("Then the closed-form inversion matches the cost polynomial", func() {
			v := vdot.VelocityForCost(50 * 0.86)
			So(vdot.OxygenCost(v), ShouldAlmostEqual, 43, 1e-9)
		})
	})

	Convey("Given an out-of-range index", t, func() {
		_, err := vdot.ToPaceZones(12)
		So(errors.Is(err, vdot.ErrIndexOutOfRange), ShouldBeTrue)
	})
}

func TestClampAndLabel(t *testing.T) {
	Convey("Clamp keeps values inside the domain", t, func() {
		So(vdot.Clamp(5), ShouldEqual, vdot.MinIndex)
		So(vdot.Clamp(99), ShouldEqual, vdot.MaxIndex)
		So(vdot.Clamp(47), ShouldEqual, 47.0)
	})

	Convey("Label names the band", t, func() {
		So(vdot.Label(25), ShouldEqual, "novice")
		So(vdot.Label(49.8), ShouldEqual, "intermediate")
		So(vdot.Label(72), ShouldEqual, "elite")
	})
}
