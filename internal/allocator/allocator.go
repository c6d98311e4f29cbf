/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package allocator distributes content volume across the study days of a
// computed calendar under day-type and subject-priority rules.
package allocator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyforge/studyforge/internal/schedule"
)

// DefaultStrategicDaysPerWeek is the fixed weekly day count granted to a
// strategic subject when the content does not specify one.
const DefaultStrategicDaysPerWeek = 2

// weakFocusBoost scales the per-day share of contents whose risk score exceeds
// the cohort mean when weak-subject focus is enabled.
const weakFocusBoost = 1.5

// Allocator produces PlanChunks from a calendar and a content list.
// Stateless; safe for concurrent use.
type Allocator struct {
	logger zerolog.Logger
}

// New constructs an allocator.
func New(logger zerolog.Logger) *Allocator {
	return &Allocator{logger: logger.With().Str("component", "allocator").Logger()}
}

// Result is a completed allocation pass. Violations is non-empty only under
// warning or auto_fix constraint handling.
type Result struct {
	Chunks     []schedule.PlanChunk
	Violations []schedule.Violation
}

// Allocate distributes each content's volume across the calendar's study days,
// generates review chunks for review days, and applies subject constraints.
//
// Fails with schedule.ErrNoAvailableDates when no study day in the whole
// period has capacity, and with *schedule.ConstraintError under strict
// handling when a subject rule is broken.
func (a *Allocator) Allocate(
	days []schedule.DaySchedule,
	contents []schedule.ContentItem,
	constraints schedule.SubjectConstraints,
	policy schedule.SchedulerPolicy,
) (Result, error) {
	studyDays := capacityDays(days, schedule.DayTypeStudy)
	if len(studyDays) == 0 {
		return Result{}, schedule.ErrNoAvailableDates
	}

	learning := make([]schedule.ContentItem, 0, len(contents))
	for _, c := range contents {
		if c.Kind != "" && c.Kind != schedule.KindLearning {
			continue
		}
		if c.TotalUnits <= 0 {
			continue
		}
		learning = append(learning, c)
	}

	state := newAllocState(learning, policy)
	chunks := a.allocateStudyDays(days, studyDays, state, policy)
	chunks = append(chunks, a.allocateReviewDays(days, chunks, policy)...)
	if policy.AdditionalPeriod != nil {
		chunks = append(chunks, reviewPass(chunks, *policy.AdditionalPeriod)...)
	}

	violations := checkConstraints(chunks, learning, constraints)
	if len(violations) > 0 {
		switch constraints.Handling {
		case schedule.HandlingStrict:
			return Result{}, &schedule.ConstraintError{Violations: violations}
		case schedule.HandlingAutoFix:
			// Substitution needs an unallocated content carrying the missing
			// subject; when none exists we degrade to warning behavior.
			violations = append(violations, schedule.Violation{
				Kind:    schedule.ViolationAutoFixFailed,
				Message: "no substitute content available, returning warnings",
			})
		}
	}

	return Result{Chunks: chunks, Violations: violations}, nil
}

// allocState tracks per-content progress through the period.
type allocState struct {
	contents  []schedule.ContentItem
	remaining map[string]int
	nextUnit  map[string]int
	meanRisk  float64
}

func newAllocState(contents []schedule.ContentItem, policy schedule.SchedulerPolicy) *allocState {
	st := &allocState{
		contents:  contents,
		remaining: make(map[string]int, len(contents)),
		nextUnit:  make(map[string]int, len(contents)),
	}
	total := 0.0
	for _, c := range contents {
		st.remaining[c.ID] = c.TotalUnits
		st.nextUnit[c.ID] = 1
		total += c.PriorityWeight
	}
	if len(contents) > 0 {
		st.meanRisk = total / float64(len(contents))
	}
	return st
}

// take carves the next share-sized chunk off a content, clamped to what is
// left. Returns a zero chunk when the content is exhausted.
func (st *allocState) take(c schedule.ContentItem, date time.Time, share int) (schedule.PlanChunk, bool) {
	rem := st.remaining[c.ID]
	if rem <= 0 || share <= 0 {
		return schedule.PlanChunk{}, false
	}
	if share > rem {
		share = rem
	}
	start := st.nextUnit[c.ID]
	chunk := schedule.PlanChunk{
		ContentID: c.ID,
		Type:      c.Type,
		Date:      date,
		UnitStart: start,
		UnitEnd:   start + share - 1,
	}
	st.nextUnit[c.ID] = chunk.UnitEnd + 1
	st.remaining[c.ID] -= share
	return chunk, true
}

// allocateStudyDays walks the period's study days in order. Strategic contents
// are pinned to a fixed number of days per week; everything else is spread
// proportionally over the remaining study days, with the weak-subject boost
// applied above the cohort mean risk.
func (a *Allocator) allocateStudyDays(
	days []schedule.DaySchedule,
	studyDays []schedule.DaySchedule,
	state *allocState,
	policy schedule.SchedulerPolicy,
) []schedule.PlanChunk {
	strategicDays := strategicDayPlan(studyDays, state.contents)

	var chunks []schedule.PlanChunk
	for i, day := range studyDays {
		remainingDays := len(studyDays) - i
		for _, c := range state.contents {
			if c.Strategic {
				plan := strategicDays[c.ID]
				pos := indexOfDate(plan, day.Date)
				if pos < 0 {
					continue
				}
				share := ceilDiv(state.remaining[c.ID], len(plan)-pos)
				if chunk, ok := state.take(c, day.Date, share); ok {
					chunks = append(chunks, chunk)
				}
				continue
			}

			share := ceilDiv(state.remaining[c.ID], remainingDays)
			if policy.WeakSubjectFocus && c.PriorityWeight > state.meanRisk {
				share = int(math.Ceil(float64(share) * weakFocusBoost))
			}
			if chunk, ok := state.take(c, day.Date, share); ok {
				chunks = append(chunks, chunk)
			}
		}
	}
	return chunks
}

// strategicDayPlan picks, for each strategic content, the first N study days of
// every week. The resulting date list is the content's full allocation plan.
func strategicDayPlan(studyDays []schedule.DaySchedule, contents []schedule.ContentItem) map[string][]time.Time {
	byWeek := make(map[int][]schedule.DaySchedule)
	weeks := make([]int, 0)
	for _, d := range studyDays {
		if _, ok := byWeek[d.WeekNumber]; !ok {
			weeks = append(weeks, d.WeekNumber)
		}
		byWeek[d.WeekNumber] = append(byWeek[d.WeekNumber], d)
	}
	sort.Ints(weeks)

	out := make(map[string][]time.Time)
	for _, c := range contents {
		if !c.Strategic {
			continue
		}
		perWeek := c.StrategicDaysPerWeek
		if perWeek <= 0 {
			perWeek = DefaultStrategicDaysPerWeek
		}
		var plan []time.Time
		for _, w := range weeks {
			weekDays := byWeek[w]
			n := perWeek
			if n > len(weekDays) {
				n = len(weekDays)
			}
			for _, d := range weekDays[:n] {
				plan = append(plan, d.Date)
			}
		}
		out[c.ID] = plan
	}
	return out
}

// allocateReviewDays emits review chunks for each review day referencing the
// unit ranges already assigned that week.
func (a *Allocator) allocateReviewDays(
	days []schedule.DaySchedule,
	studyChunks []schedule.PlanChunk,
	policy schedule.SchedulerPolicy,
) []schedule.PlanChunk {
	weekOf := make(map[string]int, len(days))
	for _, d := range days {
		weekOf[schedule.DateKey(d.Date)] = d.WeekNumber
	}

	// Per week, track each content's covered range and its latest study day.
	type weekCoverage struct {
		order    []string
		ranges   map[string][2]int
		lastDate map[string]time.Time
		lastOf   time.Time
	}
	coverage := make(map[int]*weekCoverage)
	for _, chunk := range studyChunks {
		week := weekOf[schedule.DateKey(chunk.Date)]
		cov := coverage[week]
		if cov == nil {
			cov = &weekCoverage{ranges: make(map[string][2]int), lastDate: make(map[string]time.Time)}
			coverage[week] = cov
		}
		r, seen := cov.ranges[chunk.ContentID]
		if !seen {
			cov.order = append(cov.order, chunk.ContentID)
			r = [2]int{chunk.UnitStart, chunk.UnitEnd}
		} else {
			if chunk.UnitStart < r[0] {
				r[0] = chunk.UnitStart
			}
			if chunk.UnitEnd > r[1] {
				r[1] = chunk.UnitEnd
			}
		}
		cov.ranges[chunk.ContentID] = r
		if chunk.Date.After(cov.lastDate[chunk.ContentID]) {
			cov.lastDate[chunk.ContentID] = chunk.Date
		}
		if chunk.Date.After(cov.lastOf) {
			cov.lastOf = chunk.Date
		}
	}

	typeOf := make(map[string]schedule.ContentType)
	for _, chunk := range studyChunks {
		typeOf[chunk.ContentID] = chunk.Type
	}

	var out []schedule.PlanChunk
	for _, day := range days {
		if day.DayType != schedule.DayTypeReview {
			continue
		}
		cov := coverage[day.WeekNumber]
		if cov == nil {
			continue
		}
		for _, id := range cov.order {
			r := cov.ranges[id]
			if policy.ReviewScope == schedule.ReviewScopeLastStudyDay {
				r = lastDayRange(studyChunks, id, cov.lastDate[id])
			}
			out = append(out, schedule.PlanChunk{
				ContentID: id,
				Type:      typeOf[id],
				Date:      day.Date,
				UnitStart: r[0],
				UnitEnd:   r[1],
				IsReview:  true,
			})
		}
	}
	return out
}

func lastDayRange(chunks []schedule.PlanChunk, contentID string, date time.Time) [2]int {
	r := [2]int{0, 0}
	first := true
	for _, chunk := range chunks {
		if chunk.ContentID != contentID || !chunk.Date.Equal(date) {
			continue
		}
		if first {
			r = [2]int{chunk.UnitStart, chunk.UnitEnd}
			first = false
			continue
		}
		if chunk.UnitStart < r[0] {
			r[0] = chunk.UnitStart
		}
		if chunk.UnitEnd > r[1] {
			r[1] = chunk.UnitEnd
		}
	}
	return r
}

// reviewPass re-emits the main period's study chunks as scaled-down review
// chunks distributed cyclically over the additional period's dates.
func reviewPass(chunks []schedule.PlanChunk, ap schedule.AdditionalPeriod) []schedule.PlanChunk {
	start := schedule.DateOf(ap.Start)
	end := schedule.DateOf(ap.End)
	if end.Before(start) {
		return nil
	}
	nDays := schedule.DaysBetween(start, end) + 1

	var out []schedule.PlanChunk
	i := 0
	for _, chunk := range chunks {
		if chunk.IsReview {
			continue
		}
		span := int(math.Ceil(float64(chunk.Units()) * ap.Factor))
		if span < 1 {
			span = 1
		}
		if span > chunk.Units() {
			span = chunk.Units()
		}
		out = append(out, schedule.PlanChunk{
			ContentID: chunk.ContentID,
			Type:      chunk.Type,
			Date:      start.AddDate(0, 0, i%nDays),
			UnitStart: chunk.UnitStart,
			UnitEnd:   chunk.UnitStart + span - 1,
			IsReview:  true,
		})
		i++
	}
	return out
}

// checkConstraints evaluates required/excluded subject categories against the
// categories actually present in the allocation.
func checkConstraints(chunks []schedule.PlanChunk, contents []schedule.ContentItem, constraints schedule.SubjectConstraints) []schedule.Violation {
	allocated := make(map[string]bool)
	categoryOf := make(map[string]string, len(contents))
	for _, c := range contents {
		categoryOf[c.ID] = c.SubjectCategory
	}
	for _, chunk := range chunks {
		if cat := categoryOf[chunk.ContentID]; cat != "" {
			allocated[cat] = true
		}
	}

	var violations []schedule.Violation
	for _, req := range constraints.Required {
		if !allocated[req] {
			violations = append(violations, schedule.Violation{
				Kind:    schedule.ViolationMissingRequired,
				Subject: req,
				Message: fmt.Sprintf("required subject %q has no allocated content", req),
			})
		}
	}
	for _, ex := range constraints.Excluded {
		if allocated[ex] {
			violations = append(violations, schedule.Violation{
				Kind:    schedule.ViolationExcludedPresent,
				Subject: ex,
				Message: fmt.Sprintf("excluded subject %q is present in the allocation", ex),
			})
		}
	}
	return violations
}

func capacityDays(days []schedule.DaySchedule, dayType schedule.DayType) []schedule.DaySchedule {
	out := make([]schedule.DaySchedule, 0, len(days))
	for _, d := range days {
		if d.DayType == dayType && d.StudyHours > 0 {
			out = append(out, d)
		}
	}
	return out
}

func indexOfDate(dates []time.Time, date time.Time) int {
	for i, d := range dates {
		if d.Equal(date) {
			return i
		}
	}
	return -1
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
