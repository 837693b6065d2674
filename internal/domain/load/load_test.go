package load_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/pacer/internal/domain/coeffs"
	"github.com/okian/pacer/internal/domain/load"
	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 7, 30, 0, 0, time.UTC)
}

func easyRun(d time.Time, minutes float64) model.Workout {
	return model.Workout{Date: d, DurationMinutes: minutes, WorkoutType: types.WorkoutEasy}
}

func TestWorkoutStress(t *testing.T) {
	m := load.New(coeffs.Default().Load)
	hrProfile := model.AthleteSettings{RestingHR: 50, MaxHR: 190, Gender: types.GenderMale}

	Convey("Given a workout with a recorded TRIMP", t, func() {
		trimp := 87.0
		w := model.Workout{DurationMinutes: 60, AvgHR: 150, TRIMP: &trimp}
		got, method := m.WorkoutStress(w, hrProfile, 420)
		So(got, ShouldEqual, 87.0)
		So(method, ShouldEqual, load.MethodRecorded)
	})

	Convey("Given heart rate and a full profile", t, func() {
		w := model.Workout{DurationMinutes: 60, AvgHR: 155}
		male, method := m.WorkoutStress(w, hrProfile, 420)

		Convey("Then the Banister TRIMP is used", func() {
			So(method, ShouldEqual, load.MethodHeartRate)
			So(male, ShouldBeGreaterThan, 0)
		})

		Convey("Then the female coefficient yields a lower score", func() {
			female := hrProfile
			female.Gender = types.GenderFemale
			got, _ := m.WorkoutStress(w, female, 420)
			So(got, ShouldBeLessThan, male)
		})
	})

	Convey("Given pace but no heart-rate profile", t, func() {
		w := model.Workout{DurationMinutes: 60, DistanceMiles: 60.0 / 7, WorkoutType: types.WorkoutTempo}
		got, method := m.WorkoutStress(w, model.AthleteSettings{}, 420)

		Convey("Then an hour at threshold pace scores about 100", func() {
			So(method, ShouldEqual, load.MethodPace)
			So(got, ShouldAlmostEqual, 100.2, 0.01)
		})
	})

	Convey("Given only duration and type", t, func() {
		got, method := m.WorkoutStress(model.Workout{DurationMinutes: 40, WorkoutType: types.WorkoutInterval}, model.AthleteSettings{}, 0)
		So(method, ShouldEqual, load.MethodType)
		So(got, ShouldAlmostEqual, 76, 1e-9)

		unknown, _ := m.WorkoutStress(model.Workout{DurationMinutes: 40, WorkoutType: "yoga"}, model.AthleteSettings{}, 0)
		So(unknown, ShouldEqual, 40.0)
	})
}

func TestDailySeries(t *testing.T) {
	m := load.New(coeffs.Default().Load)

	Convey("Given workouts with a five-day gap", t, func() {
		ws := []model.Workout{
			easyRun(date(2024, 3, 1), 30),
			easyRun(date(2024, 3, 2), 30),
			easyRun(date(2024, 3, 2), 20),
			easyRun(date(2024, 3, 8), 45),
		}
		series, err := m.DailySeries(ws, model.AthleteSettings{}, 0, date(2024, 3, 1), date(2024, 3, 10))

		Convey("Then every calendar day is present", func() {
			So(err, ShouldBeNil)
			So(series, ShouldHaveLength, 10)
			for i, d := range series {
				So(d.Date, ShouldEqual, time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC))
			}
		})

		Convey("Then gap days carry zero and same-day workouts are summed", func() {
			So(series[1].Load, ShouldEqual, 50.0)
			for _, i := range []int{2, 3, 4, 5, 6, 8, 9} {
				So(series[i].Load, ShouldEqual, 0.0)
			}
			So(series[7].Load, ShouldEqual, 45.0)
		})
	})

	Convey("Given an inverted window", t, func() {
		_, err := m.DailySeries(nil, model.AthleteSettings{}, 0, date(2024, 3, 5), date(2024, 3, 1))
		So(errors.Is(err, load.ErrInvalidWindow), ShouldBeTrue)
	})
}

func TestMetrics(t *testing.T) {
	m := load.New(coeffs.Default().Load)

	Convey("Given a varied load series", t, func() {
		var series []load.DailyLoad
		for i := range 120 {
			l := float64((i * 37) % 110)
			if i%7 == 6 {
				l = 0
			}
			series = append(series, load.DailyLoad{Date: date(2024, 1, 1).AddDate(0, 0, i), Load: l})
		}
		points := m.Metrics(series)

		Convey("Then balance is exactly chronic minus acute everywhere", func() {
			for _, p := range points {
				So(p.TSB, ShouldEqual, p.CTL-p.ATL)
				So(p.CTL, ShouldBeGreaterThanOrEqualTo, 0)
				So(p.ATL, ShouldBeGreaterThanOrEqualTo, 0)
			}
		})
	})

	Convey("Given a single hard day followed by rest", t, func() {
		series := []load.DailyLoad{{Load: 100}, {}, {}, {}}
		points := m.Metrics(series)

		Convey("Then fatigue decays on the rest days", func() {
			So(points[0].ATL, ShouldAlmostEqual, 100.0/7, 1e-9)
			So(points[3].ATL, ShouldBeLessThan, points[0].ATL)
			So(points[3].TSB, ShouldBeLessThan, 0)
		})
	})
}

func TestSnapshot(t *testing.T) {
	m := load.New(coeffs.Default().Load)

	Convey("Given no workouts in the window", t, func() {
		snap, err := m.Snapshot(load.Input{
			Workouts: []model.Workout{easyRun(date(2023, 1, 1), 30)},
			From:     date(2024, 1, 1),
			To:       date(2024, 1, 31),
		})

		Convey("Then an explicit no-data state is returned", func() {
			So(err, ShouldBeNil)
			So(snap.NoData, ShouldBeTrue)
			So(snap.Sufficiency.Confidence, ShouldEqual, 0.0)
			So(snap.Sufficiency.Message, ShouldEqual, load.NoDataMessage)
			So(snap.Current, ShouldBeNil)
			So(snap.Points, ShouldBeEmpty)
		})
	})

	Convey("Given five days of training", t, func() {
		var ws []model.Workout
		for i := range 5 {
			ws = append(ws, easyRun(date(2024, 1, 1).AddDate(0, 0, i), 40))
		}
		snap, err := m.Snapshot(load.Input{Workouts: ws, From: date(2024, 1, 1), To: date(2024, 1, 5)})
		So(err, ShouldBeNil)
		So(snap.Sufficiency.Level, ShouldEqual, load.SufficiencyLow)
		So(snap.Sufficiency.Confidence, ShouldEqual, 0.3)
		So(snap.Points, ShouldHaveLength, 5)
	})

	Convey("Given two weeks of history", t, func() {
		ws := []model.Workout{easyRun(date(2024, 1, 1), 40), easyRun(date(2024, 1, 14), 40)}
		snap, err := m.Snapshot(load.Input{Workouts: ws, From: date(2024, 1, 10), To: date(2024, 1, 14)})
		So(err, ShouldBeNil)
		So(snap.Sufficiency.Level, ShouldEqual, load.SufficiencyMedium)
		So(snap.Sufficiency.DaysOfHistory, ShouldEqual, 14)
	})

	Convey("Given a steep build over ten weeks", t, func() {
		var ws []model.Workout
		start := date(2024, 1, 1)
		for i := range 70 {
			ws = append(ws, easyRun(start.AddDate(0, 0, i), float64(20+i*3)))
		}
		// A future workout must not leak into the snapshot.
		ws = append(ws, easyRun(start.AddDate(0, 0, 200), 600))
		snap, err := m.Snapshot(load.Input{Workouts: ws, From: start.AddDate(0, 0, 42), To: start.AddDate(0, 0, 69)})

		Convey("Then the ramp rate is positive and classified", func() {
			So(err, ShouldBeNil)
			So(snap.Sufficiency.Level, ShouldEqual, load.SufficiencyHigh)
			So(snap.RampRate, ShouldBeGreaterThan, 8)
			So(snap.Risk, ShouldEqual, types.RiskHigh)
		})

		Convey("Then the optimal band brackets the trailing weekly average", func() {
			So(snap.OptimalWeekly.Low, ShouldBeLessThan, snap.OptimalWeekly.High)
			So(snap.OptimalWeekly.High/snap.OptimalWeekly.Low, ShouldAlmostEqual, 1.5, 1e-9)
		})

		Convey("Then the current point is the last day and fatigue exceeds fitness", func() {
			So(snap.Current.Date, ShouldEqual, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
			So(snap.AcuteChronicRatio, ShouldBeGreaterThan, 1)
			So(snap.Current.DailyLoad, ShouldEqual, 20.0+69*3)
		})
	})

	Convey("Given steady training", t, func() {
		var ws []model.Workout
		start := date(2024, 1, 1)
		for i := range 120 {
			ws = append(ws, easyRun(start.AddDate(0, 0, i), 45))
		}
		snap, err := m.Snapshot(load.Input{Workouts: ws, From: start.AddDate(0, 0, 90), To: start.AddDate(0, 0, 119)})
		So(err, ShouldBeNil)
		So(snap.Risk, ShouldEqual, types.RiskSafe)
		So(snap.OptimalWeekly.Low, ShouldAlmostEqual, 45*7*0.8, 1e-6)
	})
}
