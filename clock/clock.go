// Package clock converts between absolute instants and wall-clock times in
// named timezones, and computes the next occurrence of daily and weekly
// local times.
package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeOfDayFormat is the layout accepted for configured reminder times.
const TimeOfDayFormat = "15:04"

// ErrInvalidTimeOfDay is returned for time strings that are not HH:MM.
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is a minute-granular local wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses an HH:MM string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse(TimeOfDayFormat, strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// LoadLocation resolves an IANA timezone name. An empty name means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// At returns the instant at which the wall clock in loc reads tod on the
// given date.
//
// A wall time repeated by a backward transition resolves to its first
// occurrence. A wall time skipped by a forward transition resolves to the
// transition itself, the first valid local time after the gap.
func At(year int, month time.Month, day int, tod TimeOfDay, loc *time.Location) time.Time {
	wall := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, time.UTC)

	// Offsets a day either side of the local guess bracket any transition
	// near wall, whatever the zone's distance from UTC.
	guess := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, loc)
	_, before := guess.Add(-24 * time.Hour).Zone()
	_, after := guess.Add(24 * time.Hour).Zone()

	early := wall.Add(-time.Duration(before) * time.Second)
	late := wall.Add(-time.Duration(after) * time.Second)
	if late.Before(early) {
		early, late = late, early
	}

	for _, candidate := range []time.Time{early, late} {
		if sameWall(candidate.In(loc), wall) {
			return candidate
		}
	}

	// Skipped: the transition lies between the two candidates and starts
	// the zone period the later one falls in.
	start, _ := late.In(loc).ZoneBounds()
	if start.After(early) && !start.After(late) {
		return start
	}
	return late
}

func sameWall(local, wall time.Time) bool {
	return local.Year() == wall.Year() &&
		local.Month() == wall.Month() &&
		local.Day() == wall.Day() &&
		local.Hour() == wall.Hour() &&
		local.Minute() == wall.Minute()
}

// NextDaily returns the earliest instant strictly after ref at which the
// local clock in loc reads one of times.
func NextDaily(ref time.Time, loc *time.Location, times ...TimeOfDay) (time.Time, error) {
	if len(times) == 0 {
		return time.Time{}, errors.New("no times of day given")
	}

	local := ref.In(loc)
	var next time.Time
	// Two days ahead covers a gap resolving onto the next day.
	for offset := 0; offset <= 2; offset++ {
		for _, tod := range times {
			candidate := At(local.Year(), local.Month(), local.Day()+offset, tod, loc)
			if !candidate.After(ref) {
				continue
			}
			if next.IsZero() || candidate.Before(next) {
				next = candidate
			}
		}
		if !next.IsZero() {
			return next.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("no occurrence of %v after %v", times, ref)
}

// NextWeekdayMidnight returns the next instant strictly after ref at which
// the local clock in loc reads 00:00 on weekday.
func NextWeekdayMidnight(ref time.Time, loc *time.Location, weekday time.Weekday) time.Time {
	local := ref.In(loc)
	days := (int(weekday) - int(local.Weekday()) + 7) % 7
	midnight := TimeOfDay{}

	candidate := At(local.Year(), local.Month(), local.Day()+days, midnight, loc)
	if !candidate.After(ref) {
		candidate = At(local.Year(), local.Month(), local.Day()+days+7, midnight, loc)
	}
	return candidate.UTC()
}

// InZone formats t as a local time in loc for display.
func InZone(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon 2 Jan 15:04 MST")
}
