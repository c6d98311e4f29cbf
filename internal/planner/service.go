/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner orchestrates the three-stage generation pipeline: calendar
// computation, content allocation and slot packing, then persists the result.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/allocator"
	"github.com/studyforge/studyforge/internal/availability"
	"github.com/studyforge/studyforge/internal/cache"
	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/packer"
	"github.com/studyforge/studyforge/internal/schedule"
	"github.com/studyforge/studyforge/internal/telemetry"
)

// ErrPlanGroupNotFound is returned when the requested plan group does not exist.
var ErrPlanGroupNotFound = errors.New("plan group not found")

// Publisher is the event sink the planner reports to. Both the in-process
// bus and the NATS bridge satisfy it.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// Service runs plan generation for plan groups.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    Publisher
	calc   *availability.Calculator
	alloc  *allocator.Allocator
	pack   *packer.Packer
	logger zerolog.Logger
}

// New constructs the planner service. cache may be nil.
func New(db *gorm.DB, entityCache *cache.Cache, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  entityCache,
		bus:    bus,
		calc:   availability.New(logger),
		alloc:  allocator.New(logger),
		pack:   packer.New(logger),
		logger: logger.With().Str("component", "planner").Logger(),
	}
}

// Result is the outcome of one pipeline execution, before persistence.
type Result struct {
	Calendar   []schedule.DaySchedule
	Chunks     []schedule.PlanChunk
	Segments   []schedule.TimeSegment
	Violations []schedule.Violation

	// Chunks on dates outside the packable calendar, kept as date-level
	// entries without a clock window. Wrap-up period chunks land here.
	Unpacked []schedule.PlanChunk

	// Units that did not fit into any study slot, per content.
	Shortfall map[string]int
}

// ShortfallUnits returns the total unplaced units.
func (r *Result) ShortfallUnits() int {
	total := 0
	for _, units := range r.Shortfall {
		total += units
	}
	return total
}

// Generate runs the full pipeline for a plan group and persists entries and a
// run record. Previous entries of the group are replaced atomically.
func (s *Service) Generate(ctx context.Context, planGroupID string) (*models.PlanRun, error) {
	ctx, span := telemetry.StartSpan(ctx, "planner", "Generate")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"plan_group": planGroupID})

	started := time.Now()

	result, err := s.execute(ctx, planGroupID, true)
	if err != nil {
		telemetry.RecordError(span, err)
		run := s.recordFailure(ctx, planGroupID, err, started)
		s.bus.Publish(events.EventPlanFailed, events.Payload{
			"plan_group": planGroupID,
			"error":      err.Error(),
		})
		return run, err
	}

	run := &models.PlanRun{
		ID:             uuid.NewString(),
		PlanGroupID:    planGroupID,
		Status:         models.RunStatusSucceeded,
		Violations:     result.Violations,
		EntryCount:     len(result.Segments) + len(result.Unpacked),
		ShortfallUnits: result.ShortfallUnits(),
		DurationMS:     time.Since(started).Milliseconds(),
	}
	if len(result.Violations) > 0 || run.ShortfallUnits > 0 {
		run.Status = models.RunStatusWarning
	}

	entries := s.buildEntries(planGroupID, run.ID, result)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("plan_group_id = ?", planGroupID).Delete(&models.PlanEntry{}).Error; err != nil {
			return fmt.Errorf("clear previous entries: %w", err)
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 200).Error; err != nil {
				return fmt.Errorf("insert entries: %w", err)
			}
		}
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.EngineErrorsTotal.WithLabelValues("persist").Inc()
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.InvalidatePlanGroup(ctx, planGroupID)
		_ = s.cache.SetCalendar(ctx, planGroupID, result.Calendar)
	}

	telemetry.PlanRunsTotal.WithLabelValues(string(run.Status)).Inc()
	telemetry.PlanBuildDuration.WithLabelValues(string(run.Status)).Observe(time.Since(started).Seconds())
	s.countEntries(result.Segments)
	if run.ShortfallUnits > 0 {
		telemetry.PackingShortfallUnits.Add(float64(run.ShortfallUnits))
	}

	s.bus.Publish(events.EventPlanGenerated, events.Payload{
		"plan_group": planGroupID,
		"run_id":     run.ID,
		"entries":    run.EntryCount,
		"status":     string(run.Status),
	})

	s.logger.Info().
		Str("plan_group", planGroupID).
		Str("run", run.ID).
		Int("entries", run.EntryCount).
		Int("shortfall_units", run.ShortfallUnits).
		Dur("elapsed", time.Since(started)).
		Msg("plan generated")

	return run, nil
}

// Preview runs the pipeline without touching the database or the cache.
func (s *Service) Preview(ctx context.Context, planGroupID string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "planner", "Preview")
	defer span.End()

	result, err := s.execute(ctx, planGroupID, false)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.bus.Publish(events.EventPlanPreviewed, events.Payload{"plan_group": planGroupID})
	return result, nil
}

// Calendar returns the availability calendar for a plan group, cached when
// possible.
func (s *Service) Calendar(ctx context.Context, planGroupID string) ([]schedule.DaySchedule, error) {
	if s.cache != nil {
		if days, ok := s.cache.GetCalendar(ctx, planGroupID); ok {
			return days, nil
		}
	}

	inputs, err := s.loadInputs(ctx, planGroupID)
	if err != nil {
		return nil, err
	}

	days, err := s.calc.Compute(inputs.group.PeriodStart, inputs.group.PeriodEnd,
		inputs.blocks, inputs.exclusions, inputs.busy, inputs.policy)
	if err != nil {
		telemetry.EngineErrorsTotal.WithLabelValues("availability").Inc()
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetCalendar(ctx, planGroupID, days)
	}
	return days, nil
}

func (s *Service) execute(ctx context.Context, planGroupID string, useCache bool) (*Result, error) {
	inputs, err := s.loadInputs(ctx, planGroupID)
	if err != nil {
		return nil, err
	}

	var days []schedule.DaySchedule
	if useCache && s.cache != nil {
		days, _ = s.cache.GetCalendar(ctx, planGroupID)
	}
	if days == nil {
		days, err = s.calc.Compute(inputs.group.PeriodStart, inputs.group.PeriodEnd,
			inputs.blocks, inputs.exclusions, inputs.busy, inputs.policy)
		if err != nil {
			telemetry.EngineErrorsTotal.WithLabelValues("availability").Inc()
			return nil, err
		}
	}

	allocated, err := s.alloc.Allocate(days, inputs.contents, inputs.constraints, inputs.policy)
	if err != nil {
		telemetry.EngineErrorsTotal.WithLabelValues("allocation").Inc()
		return nil, err
	}

	segments, unpacked, shortfall := s.packCalendar(days, allocated.Chunks, inputs.model)

	return &Result{
		Calendar:   days,
		Chunks:     allocated.Chunks,
		Segments:   segments,
		Violations: allocated.Violations,
		Unpacked:   unpacked,
		Shortfall:  shortfall,
	}, nil
}

// packCalendar packs each date's chunks into that date's study slots, carrying
// unplaced remainders into the next date that has capacity.
func (s *Service) packCalendar(days []schedule.DaySchedule, chunks []schedule.PlanChunk, model packer.DurationModel) ([]schedule.TimeSegment, []schedule.PlanChunk, map[string]int) {
	byDate := make(map[string][]packer.Item, len(days))
	for _, chunk := range chunks {
		key := schedule.DateKey(chunk.Date)
		byDate[key] = append(byDate[key], packer.Item{Chunk: chunk})
	}

	var segments []schedule.TimeSegment
	var carry []packer.Item
	visited := make(map[string]bool, len(days))
	for _, day := range days {
		key := schedule.DateKey(day.Date)
		visited[key] = true

		items := append(append([]packer.Item(nil), carry...), byDate[key]...)
		if len(items) == 0 {
			carry = nil
			continue
		}

		slots := day.StudySlots()
		if len(slots) == 0 {
			carry = items
			continue
		}

		packed, leftover := s.pack.Pack(day.Date, items, slots, model)
		segments = append(segments, packed...)
		carry = leftover
	}

	// Chunks dated outside the computed calendar (the wrap-up period) stay
	// as date-level entries without clock windows.
	var unpacked []schedule.PlanChunk
	for _, chunk := range chunks {
		if !visited[schedule.DateKey(chunk.Date)] {
			unpacked = append(unpacked, chunk)
		}
	}
	sort.SliceStable(unpacked, func(i, j int) bool { return unpacked[i].Date.Before(unpacked[j].Date) })

	shortfall := make(map[string]int)
	for _, item := range carry {
		shortfall[item.Chunk.ContentID] += item.Chunk.Units()
	}
	if len(shortfall) > 0 {
		s.logger.Warn().Interface("shortfall", shortfall).Msg("not all units fit into study slots")
	}
	return segments, unpacked, shortfall
}

func (s *Service) buildEntries(planGroupID, runID string, result *Result) []models.PlanEntry {
	entries := make([]models.PlanEntry, 0, len(result.Segments)+len(result.Unpacked))
	for _, seg := range result.Segments {
		entries = append(entries, models.PlanEntry{
			ID:          uuid.NewString(),
			PlanGroupID: planGroupID,
			PlanRunID:   runID,
			ContentID:   seg.ContentID,
			Date:        seg.Date,
			UnitStart:   seg.UnitStart,
			UnitEnd:     seg.UnitEnd,
			StartTime:   seg.Start.String(),
			EndTime:     seg.End.String(),
			IsPartial:   seg.IsPartial,
			IsContinued: seg.IsContinued,
			IsReview:    seg.IsReview,
		})
	}
	for _, chunk := range result.Unpacked {
		entries = append(entries, models.PlanEntry{
			ID:          uuid.NewString(),
			PlanGroupID: planGroupID,
			PlanRunID:   runID,
			ContentID:   chunk.ContentID,
			Date:        chunk.Date,
			UnitStart:   chunk.UnitStart,
			UnitEnd:     chunk.UnitEnd,
			IsReview:    chunk.IsReview,
		})
	}
	return entries
}

func (s *Service) countEntries(segments []schedule.TimeSegment) {
	study, review := 0, 0
	for _, seg := range segments {
		if seg.IsReview {
			review++
		} else {
			study++
		}
	}
	telemetry.PlanEntriesTotal.WithLabelValues("study").Add(float64(study))
	telemetry.PlanEntriesTotal.WithLabelValues("review").Add(float64(review))
}

func (s *Service) recordFailure(ctx context.Context, planGroupID string, cause error, started time.Time) *models.PlanRun {
	run := &models.PlanRun{
		ID:          uuid.NewString(),
		PlanGroupID: planGroupID,
		Status:      models.RunStatusFailed,
		Error:       cause.Error(),
		DurationMS:  time.Since(started).Milliseconds(),
	}
	if ce, ok := schedule.AsConstraintError(cause); ok {
		run.Violations = ce.Violations
	}

	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		s.logger.Error().Err(err).Str("plan_group", planGroupID).Msg("failed to record plan run failure")
	}

	telemetry.PlanRunsTotal.WithLabelValues(string(models.RunStatusFailed)).Inc()
	telemetry.PlanBuildDuration.WithLabelValues(string(models.RunStatusFailed)).Observe(time.Since(started).Seconds())
	return run
}
