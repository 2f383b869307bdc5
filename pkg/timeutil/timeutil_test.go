package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarDaysBetween_UsesLocalCalendar(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)

	// 23:30 and 00:30 local are one calendar day apart even though only an hour passed.
	late := time.Date(2025, 3, 10, 23, 30, 0, 0, loc)
	early := time.Date(2025, 3, 11, 0, 30, 0, 0, loc)
	assert.Equal(t, 1, CalendarDaysBetween(late, early, loc))

	// 00:10 and 23:50 local on the same day are zero days apart.
	a := time.Date(2025, 3, 10, 0, 10, 0, 0, loc)
	b := time.Date(2025, 3, 10, 23, 50, 0, 0, loc)
	assert.Equal(t, 0, CalendarDaysBetween(a, b, loc))
	assert.True(t, SameDay(a, b, loc))

	// The same instants are on different days when seen from UTC.
	assert.Equal(t, 1, CalendarDaysBetween(a, b, time.UTC))
}

func TestCalendarDaysBetween_AcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	before := time.Date(2025, 3, 8, 12, 0, 0, 0, loc)
	after := time.Date(2025, 3, 9, 12, 0, 0, 0, loc) // 23 hours later
	assert.Equal(t, 1, CalendarDaysBetween(before, after, loc))
	assert.Equal(t, -1, CalendarDaysBetween(after, before, loc))
}

func TestStartOfDayAndDaysAgo(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2025, 3, 10, 15, 4, 5, 0, loc)

	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, loc), StartOfDay(now, loc))
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, loc), DaysAgo(now, 7, loc))
	assert.Equal(t, "2025-03-10", DayKey(now, loc))
}

func TestLoadLocation_Fallback(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}
