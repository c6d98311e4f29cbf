/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package planner

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/packer"
	"github.com/studyforge/studyforge/internal/schedule"
)

// pipelineInputs is everything one generation run needs, loaded in one pass
// and converted from persistence models to engine types.
type pipelineInputs struct {
	group       models.PlanGroup
	blocks      []schedule.TimeBlock
	exclusions  []schedule.Exclusion
	busy        []schedule.BusyPeriod
	contents    []schedule.ContentItem
	constraints schedule.SubjectConstraints
	policy      schedule.SchedulerPolicy
	model       packer.DurationModel
}

func (s *Service) loadInputs(ctx context.Context, planGroupID string) (*pipelineInputs, error) {
	db := s.db.WithContext(ctx)

	var group models.PlanGroup
	if err := db.First(&group, "id = ?", planGroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanGroupNotFound
		}
		return nil, fmt.Errorf("load plan group: %w", err)
	}

	var blocks []models.AvailabilityBlock
	if err := db.Where("plan_group_id = ?", planGroupID).
		Order("day_of_week, start_time").Find(&blocks).Error; err != nil {
		return nil, fmt.Errorf("load availability blocks: %w", err)
	}

	var exclusions []models.DateExclusion
	if err := db.Where("plan_group_id = ?", planGroupID).
		Order("date").Find(&exclusions).Error; err != nil {
		return nil, fmt.Errorf("load date exclusions: %w", err)
	}

	var academies []models.AcademyPeriod
	if err := db.Where("plan_group_id = ?", planGroupID).
		Order("day_of_week, start_time").Find(&academies).Error; err != nil {
		return nil, fmt.Errorf("load academy periods: %w", err)
	}

	var contents []models.ContentItem
	if err := db.Where("plan_group_id = ?", planGroupID).
		Order("created_at").Find(&contents).Error; err != nil {
		return nil, fmt.Errorf("load content items: %w", err)
	}

	inputs := &pipelineInputs{group: group}

	for _, b := range blocks {
		start, err := schedule.ParseClock(b.StartTime)
		if err != nil {
			return nil, fmt.Errorf("availability block %s: %w", b.ID, err)
		}
		end, err := schedule.ParseClock(b.EndTime)
		if err != nil {
			return nil, fmt.Errorf("availability block %s: %w", b.ID, err)
		}
		inputs.blocks = append(inputs.blocks, schedule.TimeBlock{
			Weekday: b.DayOfWeek,
			Start:   start,
			End:     end,
		})
	}

	for _, e := range exclusions {
		inputs.exclusions = append(inputs.exclusions, schedule.Exclusion{
			Date:   schedule.DateOf(e.Date),
			Kind:   schedule.ExclusionKind(e.Kind),
			Reason: e.Reason,
		})
	}

	for _, a := range academies {
		start, err := schedule.ParseClock(a.StartTime)
		if err != nil {
			return nil, fmt.Errorf("academy period %s: %w", a.ID, err)
		}
		end, err := schedule.ParseClock(a.EndTime)
		if err != nil {
			return nil, fmt.Errorf("academy period %s: %w", a.ID, err)
		}
		inputs.busy = append(inputs.busy, schedule.BusyPeriod{
			Weekday:       a.DayOfWeek,
			Start:         start,
			End:           end,
			Label:         a.Name,
			TravelMinutes: a.TravelMinutes,
		})
	}

	inputs.model = packer.DurationModel{
		BookMinutesPerPage: make(map[string]float64),
		LectureUnitMinutes: make(map[string][]int),
		CustomTotalMinutes: make(map[string]int),
		CustomTotalUnits:   make(map[string]int),
	}
	for _, c := range contents {
		inputs.contents = append(inputs.contents, schedule.ContentItem{
			ID:                   c.ID,
			Type:                 schedule.ContentType(c.ContentType),
			Kind:                 schedule.ContentKind(c.ContentKind),
			Title:                c.Title,
			TotalUnits:           c.TotalUnits,
			SubjectCategory:      c.SubjectCategory,
			PriorityWeight:       c.PriorityWeight,
			Strategic:            c.Strategic,
			StrategicDaysPerWeek: c.StrategicDaysPerWeek,
			TotalDurationMinutes: c.TotalDurationMinutes,
			EpisodeMinutes:       c.EpisodeMinutes,
		})

		switch schedule.ContentType(c.ContentType) {
		case schedule.ContentBook:
			if c.MinutesPerPage > 0 {
				inputs.model.BookMinutesPerPage[c.ID] = c.MinutesPerPage
			}
		case schedule.ContentLecture:
			if len(c.EpisodeMinutes) > 0 {
				inputs.model.LectureUnitMinutes[c.ID] = c.EpisodeMinutes
			}
		default:
			if c.TotalDurationMinutes > 0 && c.TotalUnits > 0 {
				inputs.model.CustomTotalMinutes[c.ID] = c.TotalDurationMinutes
				inputs.model.CustomTotalUnits[c.ID] = c.TotalUnits
			}
		}
	}

	policy, err := policyFromGroup(group)
	if err != nil {
		return nil, err
	}
	inputs.policy = policy

	inputs.constraints = schedule.SubjectConstraints{
		Required: group.RequiredSubjects,
		Excluded: group.ExcludedSubjects,
		Handling: schedule.ConstraintHandling(group.ConstraintMode),
	}

	return inputs, nil
}

// policyFromGroup maps the persisted plan group options onto the engine
// policy, filling defaults where columns are zero.
func policyFromGroup(group models.PlanGroup) (schedule.SchedulerPolicy, error) {
	policy := schedule.DefaultPolicy()
	if group.StudyDays > 0 {
		policy.StudyDays = group.StudyDays
	}
	if group.ReviewDays >= 0 && group.StudyDays > 0 {
		policy.ReviewDays = group.ReviewDays
	}
	if group.ReviewScope != "" {
		policy.ReviewScope = schedule.ReviewScope(group.ReviewScope)
	}
	policy.SelfStudyOnHolidays = group.SelfStudyOnHolidays
	policy.SelfStudyOnStudyDays = group.SelfStudyOnStudyDays
	policy.WeakSubjectFocus = group.WeakSubjectFocus

	if group.LunchStart != "" && group.LunchEnd != "" {
		start, err := schedule.ParseClock(group.LunchStart)
		if err != nil {
			return policy, fmt.Errorf("lunch start: %w", err)
		}
		end, err := schedule.ParseClock(group.LunchEnd)
		if err != nil {
			return policy, fmt.Errorf("lunch end: %w", err)
		}
		policy.Lunch = &schedule.TimeRange{Start: start, End: end}
	}

	if group.AdditionalStart != nil && group.AdditionalEnd != nil {
		factor := group.AdditionalFactor
		if factor <= 0 {
			factor = 0.5
		}
		policy.AdditionalPeriod = &schedule.AdditionalPeriod{
			Start:  schedule.DateOf(*group.AdditionalStart),
			End:    schedule.DateOf(*group.AdditionalEnd),
			Factor: factor,
		}
	}

	return policy, nil
}
