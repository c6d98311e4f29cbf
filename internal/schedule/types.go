/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule holds the value types and calendar arithmetic shared by the
// availability, allocator, and packer stages. Everything here is a plain,
// JSON-serializable record; the engine stages are pure functions over them.
package schedule

import "time"

// DayType classifies a calendar day within a plan period.
type DayType string

const (
	DayTypeStudy             DayType = "study_day"
	DayTypeReview            DayType = "review_day"
	DayTypeDesignatedHoliday DayType = "designated_holiday"
	DayTypeVacation          DayType = "vacation"
	DayTypePersonal          DayType = "personal"
)

// SlotKind classifies a typed time window inside a day.
type SlotKind string

const (
	SlotStudyTime SlotKind = "study_time"
	SlotLunch     SlotKind = "lunch"
	SlotAcademy   SlotKind = "academy"
	SlotTravel    SlotKind = "travel"
	SlotSelfStudy SlotKind = "self_study"
)

// ExclusionKind classifies a one-off date removed from availability.
type ExclusionKind string

const (
	ExclusionVacation          ExclusionKind = "vacation"
	ExclusionPersonal          ExclusionKind = "personal"
	ExclusionDesignatedHoliday ExclusionKind = "designated_holiday"
	ExclusionOther             ExclusionKind = "other"
)

// ContentType identifies how a content item's volume is measured.
type ContentType string

const (
	ContentBook    ContentType = "book"
	ContentLecture ContentType = "lecture"
	ContentCustom  ContentType = "custom"
)

// ContentKind tags what a content item represents. Non-learning blocks and
// self-study placeholders are explicit variants, not sentinel IDs.
type ContentKind string

const (
	KindLearning    ContentKind = "learning"
	KindNonLearning ContentKind = "non_learning_block"
	KindSelfStudy   ContentKind = "self_study"
)

// ReviewScope controls how much of a week a review day covers.
type ReviewScope string

const (
	ReviewScopeWeek         ReviewScope = "week"
	ReviewScopeLastStudyDay ReviewScope = "last_study_day"
)

// ConstraintHandling selects how subject rule violations are treated.
type ConstraintHandling string

const (
	HandlingStrict  ConstraintHandling = "strict"
	HandlingWarning ConstraintHandling = "warning"
	HandlingAutoFix ConstraintHandling = "auto_fix"
)

// TimeBlock is a recurring weekly availability window. Weekday uses 0=Sunday,
// matching time.Weekday. Invariant: Start < End.
type TimeBlock struct {
	Weekday int         `json:"weekday"`
	Start   ClockMinute `json:"start"`
	End     ClockMinute `json:"end"`
}

// Exclusion removes a single calendar date from study availability.
// One exclusion per date; on duplicates the last write wins.
type Exclusion struct {
	Date   time.Time     `json:"date"`
	Kind   ExclusionKind `json:"kind"`
	Reason string        `json:"reason,omitempty"`
}

// BusyPeriod is a recurring weekly commitment (e.g. an academy class) that
// consumes its window plus a travel buffer on both sides.
type BusyPeriod struct {
	Weekday       int         `json:"weekday"`
	Start         ClockMinute `json:"start"`
	End           ClockMinute `json:"end"`
	Label         string      `json:"label,omitempty"`
	Subject       string      `json:"subject,omitempty"`
	TravelMinutes int         `json:"travel_minutes"`
}

// TimeRange is a clock-time window within a single day.
type TimeRange struct {
	Start ClockMinute `json:"start"`
	End   ClockMinute `json:"end"`
}

// AdditionalPeriod re-emits the main period's chunks as scaled-down review
// material inside [Start, End].
type AdditionalPeriod struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Factor float64   `json:"factor"`
}

// SchedulerPolicy carries every scheduling option with a concrete type and
// default. StudyDays+ReviewDays must equal 7.
type SchedulerPolicy struct {
	StudyDays            int               `json:"study_days"`
	ReviewDays           int               `json:"review_days"`
	Lunch                *TimeRange        `json:"lunch,omitempty"`
	SelfStudyOnHolidays  bool              `json:"self_study_on_holidays"`
	SelfStudyOnStudyDays bool              `json:"self_study_on_study_days"`
	WeakSubjectFocus     bool              `json:"weak_subject_focus"`
	ReviewScope          ReviewScope       `json:"review_scope"`
	AdditionalPeriod     *AdditionalPeriod `json:"additional_period,omitempty"`
}

// DefaultPolicy returns the baseline six-study-day policy.
func DefaultPolicy() SchedulerPolicy {
	return SchedulerPolicy{
		StudyDays:   6,
		ReviewDays:  1,
		ReviewScope: ReviewScopeWeek,
	}
}

// TimeSlot is one typed window inside a DaySchedule. Slots within a day are
// sorted by start time and never overlap.
type TimeSlot struct {
	Kind  SlotKind    `json:"kind"`
	Start ClockMinute `json:"start"`
	End   ClockMinute `json:"end"`
	Label string      `json:"label,omitempty"`
}

// Minutes returns the slot length in minutes.
func (s TimeSlot) Minutes() int {
	return int(s.End - s.Start)
}

// DaySchedule is the computed calendar entry for one date. Immutable once
// computed; the concatenation of StudyTime slots equals StudyHours.
type DaySchedule struct {
	Date       time.Time  `json:"date"`
	DayType    DayType    `json:"day_type"`
	WeekNumber int        `json:"week_number"`
	TimeSlots  []TimeSlot `json:"time_slots"`
	StudyHours float64    `json:"study_hours"`
}

// StudySlots returns the StudyTime slots only, in order.
func (d DaySchedule) StudySlots() []TimeSlot {
	out := make([]TimeSlot, 0, len(d.TimeSlots))
	for _, slot := range d.TimeSlots {
		if slot.Kind == SlotStudyTime {
			out = append(out, slot)
		}
	}
	return out
}

// ContentItem is a body of learning material owned by the caller. Units are
// pages for books, episodes for lectures, and generic units otherwise.
type ContentItem struct {
	ID                   string      `json:"id"`
	Type                 ContentType `json:"type"`
	Kind                 ContentKind `json:"kind"`
	Title                string      `json:"title,omitempty"`
	TotalUnits           int         `json:"total_units"`
	SubjectCategory      string      `json:"subject_category,omitempty"`
	PriorityWeight       float64     `json:"priority_weight,omitempty"`
	Strategic            bool        `json:"strategic,omitempty"`
	StrategicDaysPerWeek int         `json:"strategic_days_per_week,omitempty"`
	TotalDurationMinutes int         `json:"total_duration_minutes,omitempty"`
	EpisodeMinutes       []int       `json:"episode_minutes,omitempty"`
}

// PlanChunk is a contiguous sub-range of a content item's volume assigned to
// one date. UnitStart and UnitEnd are inclusive, 1-based.
type PlanChunk struct {
	ContentID string      `json:"content_id"`
	Type      ContentType `json:"type"`
	Date      time.Time   `json:"date"`
	UnitStart int         `json:"unit_start"`
	UnitEnd   int         `json:"unit_end"`
	IsReview  bool        `json:"is_review"`
}

// Units returns the chunk's unit span.
func (c PlanChunk) Units() int {
	return c.UnitEnd - c.UnitStart + 1
}

// TimeSegment maps a chunk (or part of one) onto a clock-time interval within
// a study slot. IsPartial marks segments that cover less than the original
// chunk range; IsContinued marks segments that are not the first of their chunk.
type TimeSegment struct {
	ContentID   string      `json:"content_id"`
	Type        ContentType `json:"type"`
	Date        time.Time   `json:"date"`
	UnitStart   int         `json:"unit_start"`
	UnitEnd     int         `json:"unit_end"`
	Start       ClockMinute `json:"start"`
	End         ClockMinute `json:"end"`
	IsPartial   bool        `json:"is_partial"`
	IsContinued bool        `json:"is_continued"`
	IsReview    bool        `json:"is_review"`
}

// SubjectConstraints lists subject categories that must or must not appear in
// an allocation, with the handling mode applied on violation.
type SubjectConstraints struct {
	Required []string           `json:"required,omitempty"`
	Excluded []string           `json:"excluded,omitempty"`
	Handling ConstraintHandling `json:"handling,omitempty"`
}

// ViolationKind labels a constraint violation.
type ViolationKind string

const (
	ViolationMissingRequired ViolationKind = "missing_required_subject"
	ViolationExcludedPresent ViolationKind = "excluded_subject_present"
	ViolationAutoFixFailed   ViolationKind = "auto_fix_unavailable"
)

// Violation is one constraint rule broken by an allocation. Non-fatal unless
// handling is strict.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Subject string        `json:"subject"`
	Message string        `json:"message"`
}
