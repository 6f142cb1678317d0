package holiday

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Interval is one blackout range, inclusive on both ends. Dates are
// zero-padded YYYY-MM-DD strings, so lexicographic comparison matches
// chronological order.
type Interval struct {
	Start string
	End   string
}

// Calendar answers whether a given date falls inside any configured
// blackout interval. The interval set is plain configuration data; it
// is never derived from an external service.
type Calendar struct {
	intervals []Interval
}

// New validates the given intervals and builds a Calendar.
// Each bound must parse as YYYY-MM-DD and Start must not be after End.
func New(intervals []Interval) (*Calendar, error) {
	for i, iv := range intervals {
		if _, err := time.Parse(dateLayout, iv.Start); err != nil {
			return nil, fmt.Errorf("holiday interval %d: bad start %q: %w", i, iv.Start, err)
		}
		if _, err := time.Parse(dateLayout, iv.End); err != nil {
			return nil, fmt.Errorf("holiday interval %d: bad end %q: %w", i, iv.End, err)
		}
		if iv.Start > iv.End {
			return nil, fmt.Errorf("holiday interval %d: start %s after end %s", i, iv.Start, iv.End)
		}
	}
	cal := &Calendar{intervals: make([]Interval, len(intervals))}
	copy(cal.intervals, intervals)
	return cal, nil
}

// Empty returns a calendar with no blackout intervals.
func Empty() *Calendar {
	return &Calendar{}
}

// IsBlackedOut reports whether date (YYYY-MM-DD) lies within any
// interval, bounds inclusive.
func (c *Calendar) IsBlackedOut(date string) bool {
	for _, iv := range c.intervals {
		if date >= iv.Start && date <= iv.End {
			return true
		}
	}
	return false
}

// Intervals returns a copy of the configured interval set.
func (c *Calendar) Intervals() []Interval {
	out := make([]Interval, len(c.intervals))
	copy(out, c.intervals)
	return out
}

// EstonianSchoolHolidays is the default blackout table: school breaks
// and summer pauses for the 2024/2025 and 2025/2026 seasons.
func EstonianSchoolHolidays() []Interval {
	return []Interval{
		{Start: "2024-10-21", End: "2024-10-27"},
		{Start: "2024-12-23", End: "2025-01-05"},
		{Start: "2025-02-24", End: "2025-03-02"},
		{Start: "2025-04-14", End: "2025-04-20"},
		{Start: "2025-06-10", End: "2025-08-31"},
		{Start: "2025-10-20", End: "2025-10-26"},
		{Start: "2025-12-22", End: "2026-01-04"},
		{Start: "2026-02-23", End: "2026-03-01"},
		{Start: "2026-04-06", End: "2026-04-12"},
		{Start: "2026-06-09", End: "2026-08-31"},
	}
}
