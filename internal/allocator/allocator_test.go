/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package allocator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyforge/studyforge/internal/schedule"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// calendarWeeks builds n full weeks starting 2024-01-01 (Mon) with six
// three-hour study days and one review day per week.
func calendarWeeks(n int) []schedule.DaySchedule {
	var days []schedule.DaySchedule
	for i := 0; i < n*7; i++ {
		d := schedule.DaySchedule{
			Date:       date(2024, 1, 1).AddDate(0, 0, i),
			WeekNumber: i/7 + 1,
			DayType:    schedule.DayTypeStudy,
			StudyHours: 3,
			TimeSlots: []schedule.TimeSlot{
				{Kind: schedule.SlotStudyTime, Start: schedule.MustClock("18:00"), End: schedule.MustClock("21:00")},
			},
		}
		if i%7 == 6 {
			d.DayType = schedule.DayTypeReview
		}
		days = append(days, d)
	}
	return days
}

func book(id string, units int) schedule.ContentItem {
	return schedule.ContentItem{ID: id, Type: schedule.ContentBook, Kind: schedule.KindLearning, TotalUnits: units}
}

func TestAllocateConservation(t *testing.T) {
	alloc := New(zerolog.Nop())
	contents := []schedule.ContentItem{book("b1", 120), book("b2", 77)}

	res, err := alloc.Allocate(calendarWeeks(2), contents, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	totals := map[string]int{}
	for _, chunk := range res.Chunks {
		if chunk.IsReview {
			continue
		}
		totals[chunk.ContentID] += chunk.Units()
	}
	if totals["b1"] != 120 {
		t.Errorf("b1 allocated = %d, want 120", totals["b1"])
	}
	if totals["b2"] != 77 {
		t.Errorf("b2 allocated = %d, want 77", totals["b2"])
	}
}

func TestAllocateContiguousRanges(t *testing.T) {
	alloc := New(zerolog.Nop())
	res, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{book("b1", 60)}, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	next := 1
	for _, chunk := range res.Chunks {
		if chunk.IsReview {
			continue
		}
		if chunk.UnitStart != next {
			t.Fatalf("chunk starts at %d, want %d", chunk.UnitStart, next)
		}
		if chunk.UnitEnd < chunk.UnitStart {
			t.Fatalf("inverted chunk %+v", chunk)
		}
		next = chunk.UnitEnd + 1
	}
	if next != 61 {
		t.Errorf("final unit = %d, want 61", next)
	}
}

func TestAllocateZeroUnitsProducesNoChunks(t *testing.T) {
	alloc := New(zerolog.Nop())
	res, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{book("empty", 0)}, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(res.Chunks) != 0 {
		t.Errorf("chunks = %d, want 0", len(res.Chunks))
	}
}

func TestAllocateNoAvailableDates(t *testing.T) {
	alloc := New(zerolog.Nop())
	days := calendarWeeks(1)
	for i := range days {
		days[i].StudyHours = 0
		days[i].TimeSlots = nil
	}
	_, err := alloc.Allocate(days, []schedule.ContentItem{book("b1", 10)}, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != schedule.ErrNoAvailableDates {
		t.Fatalf("err = %v, want ErrNoAvailableDates", err)
	}
}

func TestAllocateReviewChunksCoverWeek(t *testing.T) {
	alloc := New(zerolog.Nop())
	policy := schedule.DefaultPolicy()
	policy.ReviewScope = schedule.ReviewScopeWeek

	res, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{book("b1", 60)}, schedule.SubjectConstraints{}, policy)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	var reviews []schedule.PlanChunk
	for _, chunk := range res.Chunks {
		if chunk.IsReview {
			reviews = append(reviews, chunk)
		}
	}
	if len(reviews) != 1 {
		t.Fatalf("review chunks = %d, want 1", len(reviews))
	}
	rv := reviews[0]
	if !rv.Date.Equal(date(2024, 1, 7)) {
		t.Errorf("review date = %s, want 2024-01-07", schedule.DateKey(rv.Date))
	}
	if rv.UnitStart != 1 || rv.UnitEnd != 60 {
		t.Errorf("review range = %d-%d, want 1-60 (whole week)", rv.UnitStart, rv.UnitEnd)
	}
}

func TestAllocateReviewScopeLastStudyDay(t *testing.T) {
	alloc := New(zerolog.Nop())
	policy := schedule.DefaultPolicy()
	policy.ReviewScope = schedule.ReviewScopeLastStudyDay

	res, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{book("b1", 60)}, schedule.SubjectConstraints{}, policy)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	var study []schedule.PlanChunk
	var review *schedule.PlanChunk
	for i, chunk := range res.Chunks {
		if chunk.IsReview {
			review = &res.Chunks[i]
		} else {
			study = append(study, chunk)
		}
	}
	if review == nil {
		t.Fatal("no review chunk emitted")
	}
	last := study[len(study)-1]
	if review.UnitStart != last.UnitStart || review.UnitEnd != last.UnitEnd {
		t.Errorf("review range = %d-%d, want last study day's %d-%d",
			review.UnitStart, review.UnitEnd, last.UnitStart, last.UnitEnd)
	}
}

func TestAllocateStrategicFixedDays(t *testing.T) {
	alloc := New(zerolog.Nop())
	strategic := schedule.ContentItem{
		ID: "weak", Type: schedule.ContentBook, Kind: schedule.KindLearning,
		TotalUnits: 40, Strategic: true, StrategicDaysPerWeek: 2,
	}

	res, err := alloc.Allocate(calendarWeeks(2), []schedule.ContentItem{strategic}, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	perWeek := map[int]int{}
	total := 0
	for _, chunk := range res.Chunks {
		if chunk.IsReview {
			continue
		}
		week := int(chunk.Date.Sub(date(2024, 1, 1)).Hours()/24)/7 + 1
		perWeek[week]++
		total += chunk.Units()
	}
	for week, n := range perWeek {
		if n != 2 {
			t.Errorf("week %d study days = %d, want 2 (strategic)", week, n)
		}
	}
	if total != 40 {
		t.Errorf("allocated = %d, want 40", total)
	}
}

func TestAllocateWeakSubjectFocusBoost(t *testing.T) {
	alloc := New(zerolog.Nop())
	policy := schedule.DefaultPolicy()
	policy.WeakSubjectFocus = true

	weak := book("weak", 600)
	weak.PriorityWeight = 0.9
	strong := book("strong", 600)
	strong.PriorityWeight = 0.1

	res, err := alloc.Allocate(calendarWeeks(2), []schedule.ContentItem{weak, strong}, schedule.SubjectConstraints{}, policy)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	firstDay := map[string]int{}
	for _, chunk := range res.Chunks {
		if chunk.IsReview || !chunk.Date.Equal(date(2024, 1, 1)) {
			continue
		}
		firstDay[chunk.ContentID] = chunk.Units()
	}
	if firstDay["weak"] <= firstDay["strong"] {
		t.Errorf("weak share %d not boosted above strong share %d", firstDay["weak"], firstDay["strong"])
	}
}

func TestAllocateStrictConstraintViolation(t *testing.T) {
	alloc := New(zerolog.Nop())
	math := book("m1", 50)
	math.SubjectCategory = "수학"
	constraints := schedule.SubjectConstraints{
		Required: []string{"영어"},
		Handling: schedule.HandlingStrict,
	}

	_, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{math}, constraints, schedule.DefaultPolicy())
	ce, ok := schedule.AsConstraintError(err)
	if !ok {
		t.Fatalf("err = %v, want ConstraintError", err)
	}
	if len(ce.Violations) != 1 || ce.Violations[0].Subject != "영어" {
		t.Errorf("violations = %+v, want one missing 영어", ce.Violations)
	}
}

func TestAllocateWarningConstraintReturnsChunks(t *testing.T) {
	alloc := New(zerolog.Nop())
	math := book("m1", 50)
	math.SubjectCategory = "수학"
	constraints := schedule.SubjectConstraints{
		Required: []string{"영어"},
		Excluded: []string{"수학"},
		Handling: schedule.HandlingWarning,
	}

	res, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{math}, constraints, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(res.Chunks) == 0 {
		t.Error("expected chunks under warning handling")
	}
	if len(res.Violations) != 2 {
		t.Errorf("violations = %d, want 2", len(res.Violations))
	}
}

func TestAllocateAdditionalPeriod(t *testing.T) {
	alloc := New(zerolog.Nop())
	policy := schedule.DefaultPolicy()
	policy.AdditionalPeriod = &schedule.AdditionalPeriod{
		Start:  date(2024, 1, 8),
		End:    date(2024, 1, 10),
		Factor: 0.25,
	}

	res, err := alloc.Allocate(calendarWeeks(1), []schedule.ContentItem{book("b1", 60)}, schedule.SubjectConstraints{}, policy)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	var extra []schedule.PlanChunk
	for _, chunk := range res.Chunks {
		if chunk.IsReview && !chunk.Date.Before(date(2024, 1, 8)) {
			extra = append(extra, chunk)
		}
	}
	if len(extra) == 0 {
		t.Fatal("no additional-period chunks emitted")
	}
	for _, chunk := range extra {
		if chunk.Date.Before(date(2024, 1, 8)) || chunk.Date.After(date(2024, 1, 10)) {
			t.Errorf("chunk dated %s outside additional period", schedule.DateKey(chunk.Date))
		}
		if chunk.Units() < 1 {
			t.Errorf("scaled chunk %+v below one unit", chunk)
		}
	}
}

func TestAllocateDeterministic(t *testing.T) {
	alloc := New(zerolog.Nop())
	contents := []schedule.ContentItem{book("a", 101), book("b", 43), book("c", 7)}

	first, err := alloc.Allocate(calendarWeeks(3), contents, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	second, err := alloc.Allocate(calendarWeeks(3), contents, schedule.SubjectConstraints{}, schedule.DefaultPolicy())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(first.Chunks) != len(second.Chunks) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first.Chunks), len(second.Chunks))
	}
	for i := range first.Chunks {
		if first.Chunks[i] != second.Chunks[i] {
			t.Errorf("chunk[%d] differs: %+v vs %+v", i, first.Chunks[i], second.Chunks[i])
		}
	}
}
