package models

import (
	"fmt"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	timeOfDayLayout = "15:04"
)

// Date is a calendar date without time zone, formatted YYYY-MM-DD
type Date string

// NewDate returns the calendar date of t in t's location
func NewDate(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate validates and normalizes a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return NewDate(t), nil
}

// Valid reports whether d is a well-formed date
func (d Date) Valid() bool {
	_, err := time.Parse(dateLayout, string(d))
	return err == nil
}

// In returns midnight of d in loc
func (d Date) In(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, string(d), loc)
}

func (d Date) String() string {
	return string(d)
}

// TimeOfDay is a wall-clock time formatted HH:MM
type TimeOfDay string

// Minutes returns minutes since midnight
func (t TimeOfDay) Minutes() (int, error) {
	parsed, err := time.Parse(timeOfDayLayout, string(t))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", t)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// TimeRange is a half-open [Start, End) interval within one day
type TimeRange struct {
	Start TimeOfDay `json:"start" binding:"required"`
	End   TimeOfDay `json:"end" binding:"required"`
}

// Validate checks that both ends parse and Start < End
func (r TimeRange) Validate() error {
	start, err := r.Start.Minutes()
	if err != nil {
		return err
	}
	end, err := r.End.Minutes()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("start %s must be before end %s", r.Start, r.End)
	}
	return nil
}

// Overlaps reports whether two valid ranges intersect
func (r TimeRange) Overlaps(other TimeRange) bool {
	aStart, _ := r.Start.Minutes()
	aEnd, _ := r.End.Minutes()
	bStart, _ := other.Start.Minutes()
	bEnd, _ := other.End.Minutes()
	return aStart < bEnd && bStart < aEnd
}

// NextOccurrence returns the first calendar date on or after now's date whose weekday is
// dayOfWeek (0=Sunday..6=Saturday). When now already falls on dayOfWeek, now's date is returned.
func NextOccurrence(dayOfWeek int, now time.Time) Date {
	today := int(now.Weekday())
	delta := ((dayOfWeek-today)%7 + 7) % 7
	y, m, d := now.Date()
	return NewDate(time.Date(y, m, d+delta, 0, 0, 0, 0, now.Location()))
}
