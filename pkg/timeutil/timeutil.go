// Package timeutil provides timezone utilities for school-local calendar days.
// Streaks and analytics windows are measured in calendar days of the school's
// timezone, never in raw elapsed hours, so every helper takes a *time.Location.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// DefaultTimezone is used when a school has no timezone configured.
const DefaultTimezone = "UTC"

// LoadLocation resolves an IANA timezone name, falling back to UTC for empty
// or unknown names.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// orUTC guards against a nil location.
func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns the start of the day (00:00:00) of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// EndOfDay returns the end of the day (23:59:59.999999999) of t in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(orUTC(loc))
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, local.Location())
}

// DaysAgo returns the start of the day n calendar days before t in loc.
func DaysAgo(t time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, -n)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return CalendarDaysBetween(a, b, loc) == 0
}

// CalendarDaysBetween returns the number of calendar-day boundaries between
// from and to in loc. The result is negative when to is before from.
// DST transitions do not affect the count: days are compared as civil dates.
func CalendarDaysBetween(from, to time.Time, loc *time.Location) int {
	loc = orUTC(loc)
	f := from.In(loc)
	t := to.In(loc)
	fd := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(td.Sub(fd).Hours() / 24)
}

// DayKey returns the YYYY-MM-DD key of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format("2006-01-02")
}

// FormatDate formats a date as "02.01.2006".
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format("02.01.2006")
}
