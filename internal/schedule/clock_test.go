/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    ClockMinute
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:05", 545, false},
		{"18:00", 1080, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"25:00", 0, true},
		{"nope", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestClockString(t *testing.T) {
	if got := MustClock("07:30").String(); got != "07:30" {
		t.Errorf("String() = %q, want 07:30", got)
	}
}

func TestUnionIntervals(t *testing.T) {
	got := UnionIntervals([]Interval{
		{Start: 600, End: 720},
		{Start: 540, End: 660},
		{Start: 800, End: 860},
		{Start: 860, End: 900},
	})
	want := []Interval{{Start: 540, End: 720}, {Start: 800, End: 900}}
	if len(got) != len(want) {
		t.Fatalf("union len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("union[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSubtractInterval(t *testing.T) {
	base := []Interval{{Start: 540, End: 1080}}

	got := SubtractInterval(base, Interval{Start: 720, End: 780})
	want := []Interval{{Start: 540, End: 720}, {Start: 780, End: 1080}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("subtract middle = %v, want %v", got, want)
	}

	got = SubtractInterval(base, Interval{Start: 0, End: 540})
	if len(got) != 1 || got[0] != base[0] {
		t.Fatalf("subtract disjoint = %v, want %v", got, base)
	}

	got = SubtractInterval(base, Interval{Start: 0, End: 1440})
	if len(got) != 0 {
		t.Fatalf("subtract covering = %v, want empty", got)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	if got := DaysBetween(a, b); got != 7 {
		t.Errorf("DaysBetween = %d, want 7", got)
	}
	if got := DaysBetween(a, a); got != 0 {
		t.Errorf("DaysBetween same day = %d, want 0", got)
	}
}
