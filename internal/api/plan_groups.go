/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/auth"
	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/schedule"
)

type planGroupRequest struct {
	Name        string `json:"name"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`

	StudyDays  *int `json:"study_days,omitempty"`
	ReviewDays *int `json:"review_days,omitempty"`

	ReviewScope          string `json:"review_scope,omitempty"`
	SelfStudyOnHolidays  *bool  `json:"self_study_on_holidays,omitempty"`
	SelfStudyOnStudyDays *bool  `json:"self_study_on_study_days,omitempty"`
	WeakSubjectFocus     *bool  `json:"weak_subject_focus,omitempty"`

	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`

	AdditionalStart  string   `json:"additional_start,omitempty"`
	AdditionalEnd    string   `json:"additional_end,omitempty"`
	AdditionalFactor *float64 `json:"additional_factor,omitempty"`

	RequiredSubjects []string `json:"required_subjects,omitempty"`
	ExcludedSubjects []string `json:"excluded_subjects,omitempty"`
	ConstraintMode   string   `json:"constraint_mode,omitempty"`
}

func (a *API) handlePlanGroupsList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	query := a.db.WithContext(r.Context()).Order("created_at DESC")
	if !claims.HasRole(string(models.RoleAdmin)) {
		query = query.Where("user_id = ?", claims.UserID)
	}

	var groups []models.PlanGroup
	if err := query.Find(&groups).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handlePlanGroupsCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req planGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	periodStart, err := schedule.ParseDate(req.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_period_start")
		return
	}
	periodEnd, err := schedule.ParseDate(req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_period_end")
		return
	}
	if periodEnd.Before(periodStart) {
		writeError(w, http.StatusBadRequest, "period_end_before_start")
		return
	}

	group := models.PlanGroup{
		ID:          uuid.NewString(),
		UserID:      claims.UserID,
		Name:        req.Name,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		StudyDays:   6,
		ReviewDays:  1,
		ReviewScope: string(schedule.ReviewScopeWeek),
	}
	if code, ok := applyPlanGroupRequest(&group, &req); !ok {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	if err := a.db.WithContext(r.Context()).Create(&group).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.publish(events.EventPlanGroupCreated, events.Payload{"plan_group": group.ID})
	writeJSON(w, http.StatusCreated, group)
}

func (a *API) handlePlanGroupsGet(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (a *API) handlePlanGroupsUpdate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var req planGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Name != "" {
		group.Name = req.Name
	}
	if req.PeriodStart != "" {
		start, err := schedule.ParseDate(req.PeriodStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_period_start")
			return
		}
		group.PeriodStart = start
	}
	if req.PeriodEnd != "" {
		end, err := schedule.ParseDate(req.PeriodEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_period_end")
			return
		}
		group.PeriodEnd = end
	}
	if group.PeriodEnd.Before(group.PeriodStart) {
		writeError(w, http.StatusBadRequest, "period_end_before_start")
		return
	}
	if code, ok := applyPlanGroupRequest(group, &req); !ok {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	if err := a.db.WithContext(r.Context()).Save(group).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	a.publish(events.EventPlanGroupUpdated, events.Payload{"plan_group": group.ID})
	writeJSON(w, http.StatusOK, group)
}

func (a *API) handlePlanGroupsDelete(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.PlanEntry{}, &models.PlanRun{}, &models.ContentItem{},
			&models.AcademyPeriod{}, &models.DateExclusion{}, &models.AvailabilityBlock{},
		} {
			if err := tx.Where("plan_group_id = ?", group.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(group).Error
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	a.publish(events.EventPlanGroupDeleted, events.Payload{"plan_group": group.ID})
	w.WriteHeader(http.StatusNoContent)
}

// applyPlanGroupRequest copies optional fields onto the group, validating
// formats. Returns an error code on invalid input.
func applyPlanGroupRequest(group *models.PlanGroup, req *planGroupRequest) (string, bool) {
	if req.StudyDays != nil {
		group.StudyDays = *req.StudyDays
	}
	if req.ReviewDays != nil {
		group.ReviewDays = *req.ReviewDays
	}
	if group.StudyDays < 1 || group.ReviewDays < 0 || group.StudyDays+group.ReviewDays != 7 {
		return "invalid_week_cycle", false
	}

	if req.ReviewScope != "" {
		switch schedule.ReviewScope(req.ReviewScope) {
		case schedule.ReviewScopeWeek, schedule.ReviewScopeLastStudyDay:
			group.ReviewScope = req.ReviewScope
		default:
			return "invalid_review_scope", false
		}
	}
	if req.SelfStudyOnHolidays != nil {
		group.SelfStudyOnHolidays = *req.SelfStudyOnHolidays
	}
	if req.SelfStudyOnStudyDays != nil {
		group.SelfStudyOnStudyDays = *req.SelfStudyOnStudyDays
	}
	if req.WeakSubjectFocus != nil {
		group.WeakSubjectFocus = *req.WeakSubjectFocus
	}

	if req.LunchStart != "" || req.LunchEnd != "" {
		if _, err := schedule.ParseClock(req.LunchStart); err != nil {
			return "invalid_lunch_window", false
		}
		if _, err := schedule.ParseClock(req.LunchEnd); err != nil {
			return "invalid_lunch_window", false
		}
		group.LunchStart = req.LunchStart
		group.LunchEnd = req.LunchEnd
	}

	if req.AdditionalStart != "" || req.AdditionalEnd != "" {
		start, err := schedule.ParseDate(req.AdditionalStart)
		if err != nil {
			return "invalid_additional_period", false
		}
		end, err := schedule.ParseDate(req.AdditionalEnd)
		if err != nil || end.Before(start) {
			return "invalid_additional_period", false
		}
		group.AdditionalStart = &start
		group.AdditionalEnd = &end
	}
	if req.AdditionalFactor != nil {
		if *req.AdditionalFactor <= 0 || *req.AdditionalFactor > 1 {
			return "invalid_additional_factor", false
		}
		group.AdditionalFactor = *req.AdditionalFactor
	}

	if req.RequiredSubjects != nil {
		group.RequiredSubjects = req.RequiredSubjects
	}
	if req.ExcludedSubjects != nil {
		group.ExcludedSubjects = req.ExcludedSubjects
	}
	if req.ConstraintMode != "" {
		switch schedule.ConstraintHandling(req.ConstraintMode) {
		case schedule.HandlingStrict, schedule.HandlingWarning, schedule.HandlingAutoFix:
			group.ConstraintMode = req.ConstraintMode
		default:
			return "invalid_constraint_mode", false
		}
	}

	return "", true
}

// loadGroup loads the plan group from the URL and enforces ownership. Admins
// may access any group.
func (a *API) loadGroup(w http.ResponseWriter, r *http.Request) (*models.PlanGroup, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	groupID := chi.URLParam(r, "planGroupID")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "plan_group_id_required")
		return nil, false
	}

	var group models.PlanGroup
	err := a.db.WithContext(r.Context()).First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return nil, false
	}

	if group.UserID != claims.UserID && !claims.HasRole(string(models.RoleAdmin)) {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return &group, true
}

func (a *API) invalidate(r *http.Request, planGroupID string) {
	if a.cache != nil {
		if err := a.cache.InvalidatePlanGroup(r.Context(), planGroupID); err != nil {
			a.logger.Warn().Err(err).Str("plan_group", planGroupID).Msg("cache invalidation failed")
		}
	}
}
