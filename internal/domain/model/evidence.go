package model

import (
	"sort"
	"time"
)

// Evidence is everything one pipeline invocation may look at. All slices
// are read-only for the engine.
type Evidence struct {
	AthleteID string
	AsOf      time.Time
	Settings  AthleteSettings
	Workouts  []Workout
	Races     []RaceResult
	Streams   map[string]Stream
}

// WorkoutByID returns the workout with the given id.
func (e Evidence) WorkoutByID(id string) (Workout, bool) {
	if id == "" {
		return Workout{}, false
	}
	for _, w := range e.Workouts {
		if w.ID == id {
			return w, true
		}
	}
	return Workout{}, false
}

// Restrict returns a copy of e that contains nothing dated after asOf.
// Streams are kept only for workouts that survive the cut.
func (e Evidence) Restrict(asOf time.Time) Evidence {
	out := Evidence{
		AthleteID: e.AthleteID,
		AsOf:      asOf,
		Settings:  e.Settings,
		Workouts:  WorkoutsAsOf(e.Workouts, asOf),
		Races:     RacesAsOf(e.Races, asOf),
		Streams:   make(map[string]Stream),
	}
	for _, w := range out.Workouts {
		if s, ok := e.Streams[w.ID]; ok {
			out.Streams[w.ID] = s
		}
	}
	return out
}

// WorkoutsAsOf returns the workouts dated at or before asOf, sorted by date.
func WorkoutsAsOf(ws []Workout, asOf time.Time) []Workout {
	out := make([]Workout, 0, len(ws))
	for _, w := range ws {
		if !w.Date.After(asOf) {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// RacesAsOf returns the races dated at or before asOf, sorted by date.
func RacesAsOf(rs []RaceResult, asOf time.Time) []RaceResult {
	out := make([]RaceResult, 0, len(rs))
	for _, r := range rs {
		if !r.Date.After(asOf) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last instant of t's month in UTC.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// AgeDays returns how many days before asOf the instant t lies.
func AgeDays(t, asOf time.Time) float64 {
	return asOf.Sub(t).Hours() / 24
}
