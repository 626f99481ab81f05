package model

import (
	"fmt"
	"time"
)

// DayFormat is the wire format for schedule dates. The engine works at
// day granularity; all dates are normalized to UTC midnight.
const DayFormat = "2006-01-02"

func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func NormalizeDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func AddDays(t time.Time, days int) time.Time {
	return NormalizeDay(t).AddDate(0, 0, days)
}

// DaysBetween returns the signed number of days from one date to another.
// Both arguments are normalized first, so time-of-day never leaks in.
func DaysBetween(from, to time.Time) int {
	from = NormalizeDay(from)
	to = NormalizeDay(to)
	return int(to.Sub(from).Hours() / 24)
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatDay(t time.Time) string {
	return NormalizeDay(t).Format(DayFormat)
}
