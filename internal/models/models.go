/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/studyforge/studyforge/internal/schedule"
)

// RoleName enumerates the RBAC roles.
type RoleName string

const (
	RoleAdmin   RoleName = "admin"
	RolePlanner RoleName = "planner"
	RoleStudent RoleName = "student"
)

// User represents an authenticated account.
type User struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Password  string
	Name      string
	Role      RoleName `gorm:"type:varchar(16)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlanGroup is the root aggregate for one student's study plan: the period,
// the scheduling policy, and everything hanging off it.
type PlanGroup struct {
	ID     string `gorm:"type:uuid;primaryKey"`
	UserID string `gorm:"type:uuid;index;not null"`
	Name   string `gorm:"index"`

	PeriodStart time.Time `gorm:"type:date;not null"`
	PeriodEnd   time.Time `gorm:"type:date;not null"`

	// Weekly study/review cycle.
	StudyDays  int `gorm:"not null;default:6"`
	ReviewDays int `gorm:"not null;default:1"`

	ReviewScope          string `gorm:"type:varchar(16);default:'week'"`
	SelfStudyOnHolidays  bool
	SelfStudyOnStudyDays bool
	WeakSubjectFocus     bool

	// Optional fixed lunch window, HH:MM.
	LunchStart string `gorm:"type:varchar(5)"`
	LunchEnd   string `gorm:"type:varchar(5)"`

	// Optional wrap-up period appended after PeriodEnd.
	AdditionalStart  *time.Time `gorm:"type:date"`
	AdditionalEnd    *time.Time `gorm:"type:date"`
	AdditionalFactor float64

	// Subject constraints applied during allocation.
	RequiredSubjects []string `gorm:"type:jsonb;serializer:json"`
	ExcludedSubjects []string `gorm:"type:jsonb;serializer:json"`
	ConstraintMode   string   `gorm:"type:varchar(16);default:'warning'"`

	User *User `gorm:"foreignKey:UserID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityBlock is a recurring weekly window of free study time.
type AvailabilityBlock struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlanGroupID string `gorm:"type:uuid;index:idx_availability_blocks_group;not null"`

	DayOfWeek int    `gorm:"not null"`                  // 0=Sunday, 6=Saturday
	StartTime string `gorm:"type:varchar(5);not null"`  // HH:MM
	EndTime   string `gorm:"type:varchar(5);not null"`  // HH:MM

	PlanGroup *PlanGroup `gorm:"foreignKey:PlanGroupID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DateExclusion removes a specific date from the plan.
type DateExclusion struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlanGroupID string `gorm:"type:uuid;index:idx_date_exclusions_group;not null"`

	Date   time.Time `gorm:"type:date;not null"`
	Kind   string    `gorm:"type:varchar(32);not null"` // designated_holiday, vacation, personal
	Reason string    `gorm:"type:text"`

	PlanGroup *PlanGroup `gorm:"foreignKey:PlanGroupID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AcademyPeriod is a recurring weekly commitment (academy, tutoring) that
// blocks study time, optionally with travel buffers on both sides.
type AcademyPeriod struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlanGroupID string `gorm:"type:uuid;index:idx_academy_periods_group;not null"`

	Name          string
	DayOfWeek     int    `gorm:"not null"`
	StartTime     string `gorm:"type:varchar(5);not null"`
	EndTime       string `gorm:"type:varchar(5);not null"`
	TravelMinutes int

	PlanGroup *PlanGroup `gorm:"foreignKey:PlanGroupID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentItem is one studiable resource selected into a plan group.
type ContentItem struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlanGroupID string `gorm:"type:uuid;index:idx_content_items_group;not null"`

	Title           string `gorm:"index"`
	ContentType     string `gorm:"type:varchar(16);not null"` // book, lecture, custom
	ContentKind     string `gorm:"type:varchar(32);not null;default:'learning'"`
	SubjectCategory string `gorm:"type:varchar(64);index"`

	TotalUnits     int
	PriorityWeight float64

	// Strategic contents get fixed study days per week instead of the
	// proportional spread.
	Strategic            bool
	StrategicDaysPerWeek int

	// Duration hints. Books use minutes per page, lectures carry per-episode
	// minutes, custom contents scale total minutes over total units.
	MinutesPerPage       float64
	EpisodeMinutes       []int `gorm:"type:jsonb;serializer:json"`
	TotalDurationMinutes int

	PlanGroup *PlanGroup `gorm:"foreignKey:PlanGroupID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlanEntry is one persisted schedule row: a unit range of one content on one
// date, optionally pinned to a clock window by the packer.
type PlanEntry struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlanGroupID string `gorm:"type:uuid;index:idx_plan_entries_group;not null"`
	PlanRunID   string `gorm:"type:uuid;index:idx_plan_entries_run"`
	ContentID   string `gorm:"type:uuid;index;not null"`

	Date      time.Time `gorm:"type:date;index;not null"`
	UnitStart int       `gorm:"not null"`
	UnitEnd   int       `gorm:"not null"`

	// HH:MM clock window, empty when the date had no packable slots.
	StartTime string `gorm:"type:varchar(5)"`
	EndTime   string `gorm:"type:varchar(5)"`

	IsPartial   bool
	IsContinued bool
	IsReview    bool

	Content *ContentItem `gorm:"foreignKey:ContentID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (PlanEntry) TableName() string {
	return "plan_entries"
}

// RunStatus tracks the outcome of a generation run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusWarning   RunStatus = "warning"
	RunStatusFailed    RunStatus = "failed"
)

// PlanRun records one execution of the generation pipeline for a plan group.
type PlanRun struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	PlanGroupID string `gorm:"type:uuid;index:idx_plan_runs_group;not null"`

	Status        RunStatus `gorm:"type:varchar(16);not null"`
	Error         string    `gorm:"type:text"`
	Violations    []schedule.Violation `gorm:"type:jsonb;serializer:json"`
	EntryCount    int
	ShortfallUnits int
	DurationMS    int64

	PlanGroup *PlanGroup `gorm:"foreignKey:PlanGroupID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (PlanRun) TableName() string {
	return "plan_runs"
}
