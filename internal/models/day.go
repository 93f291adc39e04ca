package models

import (
	"fmt"
	"time"
)

// DayLayout is the canonical text form of a Day.
const DayLayout = "2006-01-02"

// Day is a civil calendar date in the configured zone, kept in its
// YYYY-MM-DD form so that lexical order matches chronological order.
type Day string

// ParseDay validates s and returns it as a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day(t.Format(DayLayout)), nil
}

// DayOf returns the civil date of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	return Day(t.In(loc).Format(DayLayout))
}

// Bounds returns the instants at which the day starts and the next day
// starts in loc. Days that contain a DST transition are 23 or 25 hours long.
func (d Day) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, string(d), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day %q: %w", string(d), err)
	}
	y, m, dd := t.Date()
	return t, time.Date(y, m, dd+1, 0, 0, 0, 0, loc), nil
}

func (d Day) String() string {
	return string(d)
}
