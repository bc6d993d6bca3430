// Package timeutil buckets timestamps into calendar days of a configured
// location. Check-in streaks are counted in these days.
package timeutil

import (
	"sort"
	"time"
)

// Zone performs day arithmetic in a single location.
type Zone struct {
	loc *time.Location
}

// NewZone returns a Zone for loc. A nil loc means UTC.
func NewZone(loc *time.Location) Zone {
	if loc == nil {
		loc = time.UTC
	}
	return Zone{loc: loc}
}

// UTC is the zero-config zone.
var UTC = NewZone(time.UTC)

// Location returns the zone's location.
func (z Zone) Location() *time.Location {
	return z.loc
}

// StartOfDay returns midnight of t's day in the zone.
func (z Zone) StartOfDay(t time.Time) time.Time {
	l := t.In(z.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, z.loc)
}

// IsSameDay checks if two times fall on the same day in the zone.
func (z Zone) IsSameDay(t1, t2 time.Time) bool {
	return z.StartOfDay(t1).Equal(z.StartOfDay(t2))
}

// DaysBetween returns the number of calendar days from t1 to t2. Negative
// when t2 is earlier.
func (z Zone) DaysBetween(t1, t2 time.Time) int {
	d1, d2 := z.StartOfDay(t1), z.StartOfDay(t2)
	// Date arithmetic instead of Sub/24h keeps DST days exact.
	n := 0
	for d1.Before(d2) {
		d1 = d1.AddDate(0, 0, 1)
		n++
	}
	for d2.Before(d1) {
		d2 = d2.AddDate(0, 0, 1)
		n--
	}
	return n
}

// DateKey formats t's day as YYYY-MM-DD in the zone.
func (z Zone) DateKey(t time.Time) string {
	return t.In(z.loc).Format(time.DateOnly)
}

// Streak counts consecutive days with at least one event, ending today or
// yesterday relative to now. Events in the future are ignored.
func (z Zone) Streak(events []time.Time, now time.Time) int {
	today := z.StartOfDay(now)

	days := make(map[time.Time]struct{}, len(events))
	for _, e := range events {
		d := z.StartOfDay(e)
		if d.After(today) {
			continue
		}
		days[d] = struct{}{}
	}
	if len(days) == 0 {
		return 0
	}

	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	if z.DaysBetween(sorted[0], today) > 1 {
		return 0
	}

	streak := 1
	for i := 1; i < len(sorted); i++ {
		if z.DaysBetween(sorted[i], sorted[i-1]) != 1 {
			break
		}
		streak++
	}
	return streak
}
