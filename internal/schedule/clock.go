/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"fmt"
	"time"
)

// ClockMinute is a clock time expressed as minutes from midnight.
// Valid values are 0..1440; 1440 marks the exclusive end of a day.
type ClockMinute int

const (
	// DayStart is midnight.
	DayStart ClockMinute = 0
	// DayEnd is the exclusive end-of-day boundary.
	DayEnd ClockMinute = 24 * 60
)

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (ClockMinute, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if hh < 0 || hh > 24 || mm < 0 || mm > 59 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return ClockMinute(hh*60 + mm), nil
}

// MustClock parses an "HH:MM" string and panics on failure. Test helper and
// fixture use only.
func MustClock(s string) ClockMinute {
	m, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String formats the minute as "HH:MM".
func (m ClockMinute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Clamp bounds the minute to [00:00, 24:00].
func (m ClockMinute) Clamp() ClockMinute {
	if m < DayStart {
		return DayStart
	}
	if m > DayEnd {
		return DayEnd
	}
	return m
}

// DateKeyFormat is the canonical calendar-date layout.
const DateKeyFormat = "2006-01-02"

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey renders t's calendar date as "YYYY-MM-DD".
func DateKey(t time.Time) string {
	return t.Format(DateKeyFormat)
}

// ParseDate parses a "YYYY-MM-DD" string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateKeyFormat, s, time.UTC)
}

// DaysBetween returns the whole-day count from a to b (b after a is positive).
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// Interval is a half-open [Start, End) minute window used by the availability
// subtraction pipeline.
type Interval struct {
	Start ClockMinute
	End   ClockMinute
}

// Empty reports whether the interval has no width.
func (iv Interval) Empty() bool {
	return iv.End <= iv.Start
}

// Intersect returns the overlap of two intervals, possibly empty.
func (iv Interval) Intersect(other Interval) Interval {
	out := Interval{Start: iv.Start, End: iv.End}
	if other.Start > out.Start {
		out.Start = other.Start
	}
	if other.End < out.End {
		out.End = other.End
	}
	return out
}

// UnionIntervals merges overlapping or touching intervals into a sorted,
// non-overlapping set.
func UnionIntervals(ivs []Interval) []Interval {
	in := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if !iv.Empty() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	sortIntervals(in)
	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End {
			if iv.End > last.End {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// SubtractInterval removes rm from every interval in ivs, keeping order.
func SubtractInterval(ivs []Interval, rm Interval) []Interval {
	if rm.Empty() {
		return ivs
	}
	out := make([]Interval, 0, len(ivs)+1)
	for _, iv := range ivs {
		hit := iv.Intersect(rm)
		if hit.Empty() {
			out = append(out, iv)
			continue
		}
		if left := (Interval{Start: iv.Start, End: hit.Start}); !left.Empty() {
			out = append(out, left)
		}
		if right := (Interval{Start: hit.End, End: iv.End}); !right.Empty() {
			out = append(out, right)
		}
	}
	return out
}

// IntersectAll clips rm against every interval in ivs, returning the covered
// sub-windows in order.
func IntersectAll(ivs []Interval, rm Interval) []Interval {
	var out []Interval
	for _, iv := range ivs {
		if hit := iv.Intersect(rm); !hit.Empty() {
			out = append(out, hit)
		}
	}
	return out
}

// TotalMinutes sums interval widths.
func TotalMinutes(ivs []Interval) int {
	total := 0
	for _, iv := range ivs {
		total += int(iv.End - iv.Start)
	}
	return total
}

func sortIntervals(ivs []Interval) {
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].Start < ivs[j-1].Start; j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}
