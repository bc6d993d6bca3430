package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestZone_StartOfDayUsesLocation(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	z := NewZone(almaty)

	// 21:00 UTC is already the next day in UTC+5.
	ts := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-02", z.DateKey(ts))
	assert.Equal(t, "2026-03-01", UTC.DateKey(ts))
	assert.False(t, z.IsSameDay(ts, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestZone_DaysBetween(t *testing.T) {
	a := time.Date(2026, 1, 30, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 2, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, UTC.DaysBetween(a, b))
	assert.Equal(t, -3, UTC.DaysBetween(b, a))
	assert.Equal(t, 0, UTC.DaysBetween(a, a))
}

func TestZone_Streak(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, -offset) }

	tests := []struct {
		name   string
		events []time.Time
		want   int
	}{
		{"none", nil, 0},
		{"today only", []time.Time{day(0)}, 1},
		{"ending yesterday", []time.Time{day(1), day(2), day(3)}, 3},
		{"gap breaks", []time.Time{day(0), day(1), day(3)}, 2},
		{"stale", []time.Time{day(2), day(3)}, 0},
		{"duplicates in a day", []time.Time{day(0), day(0).Add(-time.Hour), day(1)}, 2},
		{"future ignored", []time.Time{now.AddDate(0, 0, 1), day(0)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UTC.Streak(tt.events, now))
		})
	}
}
