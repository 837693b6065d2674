package fitfile_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/okian/pacer/internal/adapters/fitfile"
	"github.com/okian/pacer/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tormoder/fit"
)

var start = time.Date(2024, 3, 9, 7, 30, 0, 0, time.UTC)

// buildRun encodes a 10-minute run at 1 sample per 10 s covering 2 km.
func buildRun(t *testing.T, sport fit.Sport) []byte {
	t.Helper()

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	for i := 0; i <= 60; i++ {
		rec := fit.NewRecordMsg()
		rec.Timestamp = start.Add(time.Duration(i*10) * time.Second)
		rec.Distance = uint32(i * 2000 * 100 / 60)
		rec.HeartRate = 150
		activity.Records = append(activity.Records, rec)
	}

	lap := fit.NewLapMsg()
	lap.StartTime = start
	lap.TotalTimerTime = 600 * 1000
	lap.TotalDistance = 2000 * 100
	lap.AvgHeartRate = 150
	activity.Laps = append(activity.Laps, lap)

	session := fit.NewSessionMsg()
	session.StartTime = start
	session.Sport = sport
	session.TotalTimerTime = 600 * 1000
	session.TotalDistance = 2000 * 100
	session.TotalAscent = 30
	session.AvgHeartRate = 150
	session.MaxHeartRate = 171
	activity.Sessions = append(activity.Sessions, session)

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	Convey("Given an encoded running activity", t, func() {
		data := buildRun(t, fit.SportRunning)
		act, err := fitfile.Decode(bytes.NewReader(data), fitfile.Options{AthleteID: "a1", WorkoutType: types.WorkoutTempo})

		Convey("Then the session becomes a workout", func() {
			So(err, ShouldBeNil)
			w := act.Workout
			So(w.AthleteID, ShouldEqual, "a1")
			So(w.Date.Equal(start), ShouldBeTrue)
			So(w.DistanceMiles, ShouldAlmostEqual, 2000/1609.344, 1e-6)
			So(w.DurationMinutes, ShouldAlmostEqual, 10, 1e-9)
			So(w.AvgHR, ShouldEqual, 150)
			So(w.MaxHR, ShouldEqual, 171)
			So(w.WorkoutType, ShouldEqual, types.WorkoutTempo)
			So(*w.ElevationGainFt, ShouldAlmostEqual, 30*3.28084, 1e-9)
			So(w.Laps, ShouldHaveLength, 1)
			So(w.Laps[0].DurationSeconds, ShouldAlmostEqual, 600, 1e-9)
		})

		Convey("Then the records become a stream keyed by the workout", func() {
			s := act.Stream
			So(s.WorkoutID, ShouldEqual, act.Workout.ID)
			So(s.TimeSeconds, ShouldHaveLength, 61)
			So(s.TimeSeconds[60], ShouldEqual, 600)
			So(s.DistanceMiles[60], ShouldAlmostEqual, 2000/1609.344, 1e-3)
			So(s.HeartRate[0], ShouldEqual, 150)
		})

		Convey("Then importing the same file twice yields the same id", func() {
			again, err := fitfile.Decode(bytes.NewReader(data), fitfile.Options{AthleteID: "a1"})
			So(err, ShouldBeNil)
			So(again.Workout.ID, ShouldEqual, act.Workout.ID)
		})
	})

	Convey("Given a cycling activity", t, func() {
		data := buildRun(t, fit.SportCycling)

		Convey("Then it is rejected unless any sport is allowed", func() {
			_, err := fitfile.Decode(bytes.NewReader(data), fitfile.Options{AthleteID: "a1"})
			So(errors.Is(err, fitfile.ErrNotRunning), ShouldBeTrue)

			act, err := fitfile.Decode(bytes.NewReader(data), fitfile.Options{AthleteID: "a1", AllowAnySport: true})
			So(err, ShouldBeNil)
			So(act.Workout.WorkoutType, ShouldEqual, types.WorkoutOther)
		})
	})

	Convey("Given garbage bytes", t, func() {
		_, err := fitfile.Decode(bytes.NewReader([]byte("not a fit file")), fitfile.Options{})
		So(errors.Is(err, fitfile.ErrDecode), ShouldBeTrue)
	})

	Convey("Given an activity without a session", t, func() {
		_, err := fitfile.FromActivity(&fit.ActivityFile{}, fitfile.Options{})
		So(errors.Is(err, fitfile.ErrNoSession), ShouldBeTrue)
	})
}
