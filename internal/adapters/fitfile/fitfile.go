// Package fitfile converts Garmin FIT activity files into workouts and
// sample streams.
package fitfile

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tormoder/fit"

	"github.com/okian/pacer/internal/domain/model"
	"github.com/okian/pacer/internal/domain/types"
)

const feetPerMeter = 3.28084

var (
	// ErrDecode is returned when the input is not a readable FIT activity.
	ErrDecode = errors.New("invalid FIT file")
	// ErrNoSession is returned for activity files without a session.
	ErrNoSession = errors.New("activity file has no session message")
	// ErrNotRunning is returned when the session sport is not running.
	ErrNotRunning = errors.New("activity is not a run")
)

// workoutNamespace seeds deterministic workout IDs so re-importing the
// same file updates instead of duplicating.
var workoutNamespace = uuid.MustParse("5b0f3c1e-8d5a-4b7e-9a41-2f6f0c9f7d10")

// Activity is one decoded run.
type Activity struct {
	Workout model.Workout
	Stream  model.Stream
}

// Options tune the conversion.
type Options struct {
	AthleteID   string
	WorkoutType types.WorkoutType
	// AllowAnySport skips the running check.
	AllowAnySport bool
}

// ReadFile decodes the FIT file at path.
func ReadFile(path string, opts Options) (Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return Activity{}, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()
	return Decode(f, opts)
}

// Decode reads a FIT activity from r.
func Decode(r io.Reader, opts Options) (Activity, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return Activity{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	af, err := decoded.Activity()
	if err != nil {
		return Activity{}, fmt.Errorf("%w: not an activity: %w", ErrDecode, err)
	}
	return FromActivity(af, opts)
}

// FromActivity converts an already decoded activity.
func FromActivity(af *fit.ActivityFile, opts Options) (Activity, error) {
	if len(af.Sessions) == 0 || af.Sessions[0] == nil {
		return Activity{}, ErrNoSession
	}
	s := af.Sessions[0]
	if !opts.AllowAnySport && s.Sport != fit.SportRunning {
		return Activity{}, fmt.Errorf("%w: %v", ErrNotRunning, s.Sport)
	}

	stream, first := streamFrom(af.Records)
	start := validTime(s.StartTime)
	if start.IsZero() {
		start = first
	}
	if start.IsZero() {
		return Activity{}, fmt.Errorf("%w: no start time", ErrNoSession)
	}

	seconds := finitePositive(s.GetTotalTimerTimeScaled())
	if seconds == 0 && len(stream.TimeSeconds) > 0 {
		seconds = stream.TimeSeconds[len(stream.TimeSeconds)-1]
	}
	meters := finitePositive(s.GetTotalDistanceScaled())
	if meters == 0 && len(stream.DistanceMiles) > 0 {
		meters = stream.DistanceMiles[len(stream.DistanceMiles)-1] * model.MetersPerMile
	}

	id := uuid.NewSHA1(workoutNamespace, []byte(opts.AthleteID+"|"+start.UTC().Format(time.RFC3339))).String()
	w := model.Workout{
		ID:              id,
		AthleteID:       opts.AthleteID,
		Date:            start.UTC(),
		DistanceMiles:   meters / model.MetersPerMile,
		DurationMinutes: seconds / 60,
		AvgHR:           float64(validUint8(s.AvgHeartRate)),
		MaxHR:           float64(validUint8(s.MaxHeartRate)),
		WorkoutType:     opts.WorkoutType,
	}
	if w.WorkoutType == "" {
		w.WorkoutType = types.WorkoutOther
	}
	if w.DistanceMiles > 0 {
		w.AvgPaceSeconds = seconds / w.DistanceMiles
	}
	if s.TotalAscent != math.MaxUint16 {
		gain := float64(s.TotalAscent) * feetPerMeter
		w.ElevationGainFt = &gain
	}
	for _, lap := range af.Laps {
		if lap == nil {
			continue
		}
		w.Laps = append(w.Laps, model.Lap{
			DistanceMiles:   finitePositive(lap.GetTotalDistanceScaled()) / model.MetersPerMile,
			DurationSeconds: finitePositive(lap.GetTotalTimerTimeScaled()),
			AvgHR:           float64(validUint8(lap.AvgHeartRate)),
		})
	}

	stream.WorkoutID = id
	return Activity{Workout: w, Stream: stream}, nil
}

// streamFrom builds parallel samples from records that carry both a time
// and a distance. Heart rate is kept only when at least one sample has it;
// gaps are recorded as zero.
func streamFrom(records []*fit.RecordMsg) (model.Stream, time.Time) {
	type sample struct {
		ts     time.Time
		meters float64
		hr     float64
	}
	samples := make([]sample, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		ts := validTime(rec.Timestamp)
		d := rec.GetDistanceScaled()
		if ts.IsZero() || math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			continue
		}
		samples = append(samples, sample{ts: ts, meters: d, hr: float64(validUint8(rec.HeartRate))})
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].ts.Before(samples[j].ts) })

	var s model.Stream
	if len(samples) == 0 {
		return s, time.Time{}
	}
	first := samples[0].ts
	haveHR := false
	for _, sm := range samples {
		s.TimeSeconds = append(s.TimeSeconds, sm.ts.Sub(first).Seconds())
		s.DistanceMiles = append(s.DistanceMiles, sm.meters/model.MetersPerMile)
		s.HeartRate = append(s.HeartRate, sm.hr)
		haveHR = haveHR || sm.hr > 0
	}
	if !haveHR {
		s.HeartRate = nil
	}
	return s, first.UTC()
}

func validTime(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func finitePositive(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
