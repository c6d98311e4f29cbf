/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package availability turns a date range, weekly availability blocks, one-off
// exclusions, and recurring busy periods into a day-by-day calendar of typed
// time slots.
package availability

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"

	"github.com/studyforge/studyforge/internal/schedule"
)

// Calculator computes per-date DaySchedules. Stateless; safe for concurrent use.
type Calculator struct {
	logger zerolog.Logger
}

// New constructs a calculator.
func New(logger zerolog.Logger) *Calculator {
	return &Calculator{logger: logger.With().Str("component", "availability").Logger()}
}

// Compute returns one DaySchedule per calendar date in [periodStart, periodEnd]
// inclusive. Fails with schedule.ErrInvalidRange when the period is inverted.
func (c *Calculator) Compute(
	periodStart, periodEnd time.Time,
	blocks []schedule.TimeBlock,
	exclusions []schedule.Exclusion,
	busyPeriods []schedule.BusyPeriod,
	policy schedule.SchedulerPolicy,
) ([]schedule.DaySchedule, error) {
	start := schedule.DateOf(periodStart)
	end := schedule.DateOf(periodEnd)
	if end.Before(start) {
		return nil, schedule.ErrInvalidRange
	}

	blocksByDate, err := expandWeekly(start, end, len(blocks), func(i int) int { return blocks[i].Weekday })
	if err != nil {
		return nil, err
	}
	busyByDate, err := expandWeekly(start, end, len(busyPeriods), func(i int) int { return busyPeriods[i].Weekday })
	if err != nil {
		return nil, err
	}

	// Last write wins for duplicated exclusion dates.
	exclusionByDate := make(map[string]schedule.Exclusion, len(exclusions))
	for _, ex := range exclusions {
		exclusionByDate[schedule.DateKey(ex.Date)] = ex
	}

	totalDays := schedule.DaysBetween(start, end) + 1
	days := make([]schedule.DaySchedule, 0, totalDays)
	for offset := 0; offset < totalDays; offset++ {
		date := start.AddDate(0, 0, offset)
		key := schedule.DateKey(date)

		dayBlocks := pick(blocks, blocksByDate[key])
		dayBusy := pick(busyPeriods, busyByDate[key])
		exclusion, excluded := exclusionByDate[key]

		day := c.computeDay(date, offset, dayBlocks, dayBusy, exclusion, excluded, policy)
		days = append(days, day)
	}
	return days, nil
}

// computeDay runs the subtraction pipeline for one date: blocks, then
// exclusion, then busy periods with travel buffers, then lunch. Later steps
// take precedence over earlier ones for the same time range.
func (c *Calculator) computeDay(
	date time.Time,
	offset int,
	blocks []schedule.TimeBlock,
	busy []schedule.BusyPeriod,
	exclusion schedule.Exclusion,
	excluded bool,
	policy schedule.SchedulerPolicy,
) schedule.DaySchedule {
	day := schedule.DaySchedule{
		Date:       date,
		DayType:    cycleDayType(offset, policy),
		WeekNumber: offset/7 + 1,
	}

	raw := make([]schedule.Interval, 0, len(blocks))
	for _, b := range blocks {
		raw = append(raw, schedule.Interval{Start: b.Start, End: b.End})
	}
	avail := schedule.UnionIntervals(raw)

	studyKind := schedule.SlotStudyTime
	if excluded {
		day.DayType = exclusionDayType(exclusion.Kind)
		if exclusion.Kind == schedule.ExclusionDesignatedHoliday && policy.SelfStudyOnHolidays {
			studyKind = schedule.SlotSelfStudy
		} else {
			// Whole day removed: no busy, lunch, or study slots are emitted.
			return day
		}
	}
	if policy.SelfStudyOnStudyDays && day.DayType == schedule.DayTypeReview {
		studyKind = schedule.SlotSelfStudy
	}

	var slots []schedule.TimeSlot

	// Busy periods claim their window plus travel buffers, clamped to the day.
	// Each emitted slot is clipped against time already claimed by an earlier
	// busy period so slots never overlap.
	claimed := make([]schedule.Interval, 0, len(busy)*3)
	claim := func(iv schedule.Interval, kind schedule.SlotKind, label string) {
		for _, free := range subtractAll([]schedule.Interval{iv}, claimed) {
			slots = append(slots, schedule.TimeSlot{Kind: kind, Start: free.Start, End: free.End, Label: label})
			claimed = append(claimed, free)
		}
		avail = schedule.SubtractInterval(avail, iv)
	}
	for _, bp := range busy {
		academy := schedule.Interval{Start: bp.Start.Clamp(), End: bp.End.Clamp()}
		if academy.Empty() {
			continue
		}
		travel := schedule.ClockMinute(bp.TravelMinutes)
		before := schedule.Interval{Start: (academy.Start - travel).Clamp(), End: academy.Start}
		after := schedule.Interval{Start: academy.End, End: (academy.End + travel).Clamp()}

		if !before.Empty() {
			claim(before, schedule.SlotTravel, bp.Label)
		}
		claim(academy, schedule.SlotAcademy, busyLabel(bp))
		if !after.Empty() {
			claim(after, schedule.SlotTravel, bp.Label)
		}
	}

	if policy.Lunch != nil {
		lunch := schedule.Interval{Start: policy.Lunch.Start, End: policy.Lunch.End}
		for _, hit := range schedule.IntersectAll(avail, lunch) {
			slots = append(slots, schedule.TimeSlot{Kind: schedule.SlotLunch, Start: hit.Start, End: hit.End})
		}
		avail = schedule.SubtractInterval(avail, lunch)
	}

	for _, iv := range avail {
		slots = append(slots, schedule.TimeSlot{Kind: studyKind, Start: iv.Start, End: iv.End})
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	day.TimeSlots = slots

	studyMinutes := 0
	for _, slot := range slots {
		if slot.Kind == schedule.SlotStudyTime {
			studyMinutes += slot.Minutes()
		}
	}
	day.StudyHours = float64(studyMinutes) / 60
	return day
}

// cycleDayType assigns the repeating 7-day study/review cycle anchored at the
// period start: the first policy.StudyDays days of each cycle are study days.
func cycleDayType(offset int, policy schedule.SchedulerPolicy) schedule.DayType {
	studyDays := policy.StudyDays
	if studyDays <= 0 || studyDays > 7 {
		studyDays = 7
	}
	if offset%7 < studyDays {
		return schedule.DayTypeStudy
	}
	return schedule.DayTypeReview
}

func exclusionDayType(kind schedule.ExclusionKind) schedule.DayType {
	switch kind {
	case schedule.ExclusionVacation:
		return schedule.DayTypeVacation
	case schedule.ExclusionPersonal:
		return schedule.DayTypePersonal
	case schedule.ExclusionDesignatedHoliday:
		return schedule.DayTypeDesignatedHoliday
	default:
		return schedule.DayTypePersonal
	}
}

func busyLabel(bp schedule.BusyPeriod) string {
	if bp.Label != "" {
		return bp.Label
	}
	return bp.Subject
}

// expandWeekly evaluates each record's weekly recurrence over the period and
// returns, per date key, the indexes of the records that occur on that date.
func expandWeekly(start, end time.Time, n int, weekdayOf func(int) int) (map[string][]int, error) {
	out := make(map[string][]int)
	for i := 0; i < n; i++ {
		rr, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Byweekday: []rrule.Weekday{rruleWeekday(weekdayOf(i))},
			Dtstart:   start,
		})
		if err != nil {
			return nil, err
		}
		for _, occ := range rr.Between(start, end, true) {
			key := schedule.DateKey(occ)
			out[key] = append(out[key], i)
		}
	}
	return out, nil
}

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func rruleWeekday(weekday int) rrule.Weekday {
	if weekday < 0 || weekday > 6 {
		return rrule.SU
	}
	return rruleWeekdays[weekday]
}

func pick[T any](items []T, idxs []int) []T {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]T, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, items[i])
	}
	return out
}

func subtractAll(ivs []schedule.Interval, removals []schedule.Interval) []schedule.Interval {
	out := ivs
	for _, rm := range removals {
		out = schedule.SubtractInterval(out, rm)
	}
	return out
}
