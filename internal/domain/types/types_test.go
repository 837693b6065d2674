package types_test

import (
	"testing"

	"github.com/okian/pacer/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTier(t *testing.T) {
	Convey("Given confidence tiers", t, func() {
		Convey("Down steps one level and floors at low", func() {
			So(types.TierHigh.Down(), ShouldEqual, types.TierMedium)
			So(types.TierMedium.Down(), ShouldEqual, types.TierLow)
			So(types.TierLow.Down(), ShouldEqual, types.TierLow)
		})

		Convey("Valid rejects unknown labels", func() {
			So(types.TierHigh.Valid(), ShouldBeTrue)
			So(types.Tier("certain").Valid(), ShouldBeFalse)
		})
	})
}

func TestEffortLevelAndWorkoutType(t *testing.T) {
	Convey("Given effort levels", t, func() {
		So(types.EffortAllOut.Valid(), ShouldBeTrue)
		So(types.EffortLevel("sprint").Valid(), ShouldBeFalse)
	})

	Convey("Given workout types", t, func() {
		So(types.WorkoutLong.IsEasy(), ShouldBeTrue)
		So(types.WorkoutTempo.IsEasy(), ShouldBeFalse)
		So(types.WorkoutInterval.IsQuality(), ShouldBeTrue)
		So(types.WorkoutCross.IsQuality(), ShouldBeFalse)
	})
}
