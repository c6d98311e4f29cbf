/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package availability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyforge/studyforge/internal/schedule"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// allWeekBlocks returns one 18:00-21:00 block per weekday.
func allWeekBlocks() []schedule.TimeBlock {
	blocks := make([]schedule.TimeBlock, 0, 7)
	for wd := 0; wd < 7; wd++ {
		blocks = append(blocks, schedule.TimeBlock{
			Weekday: wd,
			Start:   schedule.MustClock("18:00"),
			End:     schedule.MustClock("21:00"),
		})
	}
	return blocks
}

func TestComputeWeekCycle(t *testing.T) {
	calc := New(zerolog.Nop())
	policy := schedule.SchedulerPolicy{StudyDays: 6, ReviewDays: 1}

	// 2024-01-01 is a Monday.
	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 7), allWeekBlocks(), nil, nil, policy)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("days len = %d, want 7", len(days))
	}

	for i, day := range days[:6] {
		if day.DayType != schedule.DayTypeStudy {
			t.Errorf("day[%d] type = %s, want study_day", i, day.DayType)
		}
		if day.StudyHours != 3 {
			t.Errorf("day[%d] studyHours = %v, want 3", i, day.StudyHours)
		}
		slots := day.StudySlots()
		if len(slots) != 1 {
			t.Fatalf("day[%d] study slots = %d, want 1", i, len(slots))
		}
		if slots[0].Start != schedule.MustClock("18:00") || slots[0].End != schedule.MustClock("21:00") {
			t.Errorf("day[%d] slot = %s-%s, want 18:00-21:00", i, slots[0].Start, slots[0].End)
		}
	}
	if days[6].DayType != schedule.DayTypeReview {
		t.Errorf("day[6] type = %s, want review_day", days[6].DayType)
	}
	if days[6].WeekNumber != 1 {
		t.Errorf("day[6] week = %d, want 1", days[6].WeekNumber)
	}
}

func TestComputeInvalidRange(t *testing.T) {
	calc := New(zerolog.Nop())
	_, err := calc.Compute(date(2024, 1, 7), date(2024, 1, 1), nil, nil, nil, schedule.DefaultPolicy())
	if err != schedule.ErrInvalidRange {
		t.Fatalf("err = %v, want ErrInvalidRange", err)
	}
}

func TestComputeEmptyWeekdayStillEmitted(t *testing.T) {
	calc := New(zerolog.Nop())
	// Block only on Monday; the rest of the week must still be emitted.
	blocks := []schedule.TimeBlock{{Weekday: 1, Start: schedule.MustClock("09:00"), End: schedule.MustClock("12:00")}}

	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 3), blocks, nil, nil, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("days len = %d, want 3", len(days))
	}
	if days[0].StudyHours != 3 {
		t.Errorf("monday studyHours = %v, want 3", days[0].StudyHours)
	}
	for i := 1; i < 3; i++ {
		if days[i].StudyHours != 0 {
			t.Errorf("day[%d] studyHours = %v, want 0", i, days[i].StudyHours)
		}
		if len(days[i].TimeSlots) != 0 {
			t.Errorf("day[%d] slots = %d, want 0", i, len(days[i].TimeSlots))
		}
	}
}

func TestComputeVacationExclusion(t *testing.T) {
	calc := New(zerolog.Nop())
	exclusions := []schedule.Exclusion{{Date: date(2024, 1, 2), Kind: schedule.ExclusionVacation}}

	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 3), allWeekBlocks(), exclusions, nil, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	day := days[1]
	if day.DayType != schedule.DayTypeVacation {
		t.Errorf("type = %s, want vacation", day.DayType)
	}
	if day.StudyHours != 0 {
		t.Errorf("studyHours = %v, want 0", day.StudyHours)
	}
	if len(day.StudySlots()) != 0 {
		t.Errorf("study slots = %d, want 0", len(day.StudySlots()))
	}
}

func TestComputeHolidaySelfStudy(t *testing.T) {
	calc := New(zerolog.Nop())
	exclusions := []schedule.Exclusion{{Date: date(2024, 1, 2), Kind: schedule.ExclusionDesignatedHoliday}}
	policy := schedule.DefaultPolicy()
	policy.SelfStudyOnHolidays = true

	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 3), allWeekBlocks(), exclusions, nil, policy)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	day := days[1]
	if day.DayType != schedule.DayTypeDesignatedHoliday {
		t.Errorf("type = %s, want designated_holiday", day.DayType)
	}
	if day.StudyHours != 0 {
		t.Errorf("studyHours = %v, want 0 (self-study does not count)", day.StudyHours)
	}
	var selfStudy int
	for _, slot := range day.TimeSlots {
		if slot.Kind == schedule.SlotSelfStudy {
			selfStudy++
		}
	}
	if selfStudy != 1 {
		t.Errorf("self-study slots = %d, want 1", selfStudy)
	}
}

func TestComputeBusyPeriodWithTravel(t *testing.T) {
	calc := New(zerolog.Nop())
	// Monday availability 14:00-22:00; academy 16:00-18:00 with 30min travel.
	blocks := []schedule.TimeBlock{{Weekday: 1, Start: schedule.MustClock("14:00"), End: schedule.MustClock("22:00")}}
	busy := []schedule.BusyPeriod{{
		Weekday:       1,
		Start:         schedule.MustClock("16:00"),
		End:           schedule.MustClock("18:00"),
		Label:         "math academy",
		TravelMinutes: 30,
	}}

	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 1), blocks, nil, busy, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	day := days[0]

	wantKinds := []schedule.SlotKind{
		schedule.SlotStudyTime, // 14:00-15:30
		schedule.SlotTravel,    // 15:30-16:00
		schedule.SlotAcademy,   // 16:00-18:00
		schedule.SlotTravel,    // 18:00-18:30
		schedule.SlotStudyTime, // 18:30-22:00
	}
	if len(day.TimeSlots) != len(wantKinds) {
		t.Fatalf("slots = %d, want %d: %+v", len(day.TimeSlots), len(wantKinds), day.TimeSlots)
	}
	for i, kind := range wantKinds {
		if day.TimeSlots[i].Kind != kind {
			t.Errorf("slot[%d] kind = %s, want %s", i, day.TimeSlots[i].Kind, kind)
		}
	}
	// 8h available minus 2h academy minus 1h travel.
	if day.StudyHours != 5 {
		t.Errorf("studyHours = %v, want 5", day.StudyHours)
	}

	// Slots must not overlap.
	for i := 1; i < len(day.TimeSlots); i++ {
		if day.TimeSlots[i].Start < day.TimeSlots[i-1].End {
			t.Errorf("slot[%d] overlaps slot[%d]", i, i-1)
		}
	}
}

func TestComputeTravelClampedToDayBoundary(t *testing.T) {
	calc := New(zerolog.Nop())
	busy := []schedule.BusyPeriod{{
		Weekday:       1,
		Start:         schedule.MustClock("00:10"),
		End:           schedule.MustClock("01:00"),
		TravelMinutes: 30,
	}}

	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 1), allWeekBlocks(), nil, busy, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, slot := range days[0].TimeSlots {
		if slot.Start < schedule.DayStart || slot.End > schedule.DayEnd {
			t.Errorf("slot %s-%s escapes day boundary", slot.Start, slot.End)
		}
	}
	// Leading travel buffer is clamped to 00:00.
	first := days[0].TimeSlots[0]
	if first.Kind != schedule.SlotTravel || first.Start != schedule.DayStart {
		t.Errorf("first slot = %+v, want travel starting at 00:00", first)
	}
}

func TestComputeLunchSubtraction(t *testing.T) {
	calc := New(zerolog.Nop())
	blocks := []schedule.TimeBlock{{Weekday: 1, Start: schedule.MustClock("09:00"), End: schedule.MustClock("17:00")}}
	policy := schedule.DefaultPolicy()
	policy.Lunch = &schedule.TimeRange{Start: schedule.MustClock("12:00"), End: schedule.MustClock("13:00")}

	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 1), blocks, nil, nil, policy)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	day := days[0]
	if day.StudyHours != 7 {
		t.Errorf("studyHours = %v, want 7", day.StudyHours)
	}
	var lunch int
	for _, slot := range day.TimeSlots {
		if slot.Kind == schedule.SlotLunch {
			lunch++
		}
	}
	if lunch != 1 {
		t.Errorf("lunch slots = %d, want 1", lunch)
	}
}

func TestComputeDeterministic(t *testing.T) {
	calc := New(zerolog.Nop())
	exclusions := []schedule.Exclusion{{Date: date(2024, 1, 5), Kind: schedule.ExclusionPersonal}}
	busy := []schedule.BusyPeriod{{Weekday: 3, Start: schedule.MustClock("19:00"), End: schedule.MustClock("20:00"), TravelMinutes: 15}}

	first, err := calc.Compute(date(2024, 1, 1), date(2024, 2, 29), allWeekBlocks(), exclusions, busy, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	second, err := calc.Compute(date(2024, 1, 1), date(2024, 2, 29), allWeekBlocks(), exclusions, busy, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].DayType != second[i].DayType || first[i].StudyHours != second[i].StudyHours || len(first[i].TimeSlots) != len(second[i].TimeSlots) {
			t.Errorf("day[%d] differs between runs", i)
		}
	}
}

func TestComputeDuplicateExclusionLastWins(t *testing.T) {
	calc := New(zerolog.Nop())
	exclusions := []schedule.Exclusion{
		{Date: date(2024, 1, 2), Kind: schedule.ExclusionVacation},
		{Date: date(2024, 1, 2), Kind: schedule.ExclusionPersonal},
	}
	days, err := calc.Compute(date(2024, 1, 1), date(2024, 1, 3), allWeekBlocks(), exclusions, nil, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if days[1].DayType != schedule.DayTypePersonal {
		t.Errorf("type = %s, want personal (last write wins)", days[1].DayType)
	}
}
