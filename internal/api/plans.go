/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/auth"
	"github.com/studyforge/studyforge/internal/cache"
	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/schedule"
)

func (a *API) handlePlanGenerate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	a.publish(events.EventAuditPlanGenerate, events.Payload{
		"plan_group": group.ID,
		"user":       claims.UserID,
	})

	run, err := a.planner.Generate(r.Context(), group.ID)
	if err != nil {
		a.writePipelineError(w, run, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handlePlanPreview(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	result, err := a.planner.Preview(r.Context(), group.ID)
	if err != nil {
		a.writePipelineError(w, nil, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"calendar":        result.Calendar,
		"segments":        result.Segments,
		"unpacked":        result.Unpacked,
		"violations":      result.Violations,
		"shortfall_units": result.ShortfallUnits(),
	})
}

func (a *API) handlePlanCalendar(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	days, err := a.planner.Calendar(r.Context(), group.ID)
	if err != nil {
		a.writePipelineError(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (a *API) handlePlanEntries(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	if a.cache != nil {
		if cached, hit := a.cache.GetEntries(r.Context(), group.ID); hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	var rows []models.PlanEntry
	err := a.db.WithContext(r.Context()).
		Where("plan_group_id = ?", group.ID).
		Order("date, start_time, unit_start").Find(&rows).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	entries := make([]cache.CachedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, cache.CachedEntry{
			ID:        row.ID,
			ContentID: row.ContentID,
			Date:      schedule.DateKey(row.Date),
			UnitStart: row.UnitStart,
			UnitEnd:   row.UnitEnd,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
			Partial:   row.IsPartial,
			Continued: row.IsContinued,
			Review:    row.IsReview,
		})
	}

	if a.cache != nil {
		if err := a.cache.SetEntries(r.Context(), group.ID, entries); err != nil {
			a.logger.Warn().Err(err).Str("plan_group", group.ID).Msg("entry cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handlePlanRunsList(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var runs []models.PlanRun
	err := a.db.WithContext(r.Context()).
		Where("plan_group_id = ?", group.ID).
		Order("created_at DESC").Limit(50).Find(&runs).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *API) handlePlanRunsGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	runID := chi.URLParam(r, "runID")
	var run models.PlanRun
	err := a.db.WithContext(r.Context()).
		Preload("PlanGroup").First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if run.PlanGroup != nil && run.PlanGroup.UserID != claims.UserID &&
		!claims.HasRole(string(models.RoleAdmin)) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// writePipelineError maps engine failures onto HTTP statuses. A run record is
// included when generation got far enough to write one.
func (a *API) writePipelineError(w http.ResponseWriter, run *models.PlanRun, err error) {
	status := http.StatusInternalServerError
	code := "generation_failed"

	var body map[string]any
	switch {
	case errors.Is(err, schedule.ErrNoAvailableDates):
		status, code = http.StatusUnprocessableEntity, "no_available_dates"
	case errors.Is(err, schedule.ErrInvalidRange):
		status, code = http.StatusUnprocessableEntity, "invalid_period"
	default:
		if ce, ok := schedule.AsConstraintError(err); ok {
			status, code = http.StatusUnprocessableEntity, "constraint_violation"
			body = map[string]any{"error": code, "violations": ce.Violations}
		}
	}

	if body == nil {
		body = map[string]any{"error": code}
	}
	if run != nil {
		body["run_id"] = run.ID
	}
	writeJSON(w, status, body)
}
