/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/schedule"
)

func (a *API) handleBlocksList(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var blocks []models.AvailabilityBlock
	err := a.db.WithContext(r.Context()).
		Where("plan_group_id = ?", group.ID).
		Order("day_of_week, start_time").Find(&blocks).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (a *API) handleBlocksCreate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var req struct {
		DayOfWeek int    `json:"day_of_week"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week")
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time")
		return
	}
	end, err := schedule.ParseClock(req.EndTime)
	if err != nil || end <= start {
		writeError(w, http.StatusBadRequest, "invalid_end_time")
		return
	}

	block := models.AvailabilityBlock{
		ID:          uuid.NewString(),
		PlanGroupID: group.ID,
		DayOfWeek:   req.DayOfWeek,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
	if err := a.db.WithContext(r.Context()).Create(&block).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	writeJSON(w, http.StatusCreated, block)
}

func (a *API) handleBlocksDelete(w http.ResponseWriter, r *http.Request) {
	a.deleteGroupResource(w, r, &models.AvailabilityBlock{}, chi.URLParam(r, "blockID"))
}

func (a *API) handleExclusionsList(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var exclusions []models.DateExclusion
	err := a.db.WithContext(r.Context()).
		Where("plan_group_id = ?", group.ID).
		Order("date").Find(&exclusions).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, exclusions)
}

func (a *API) handleExclusionsCreate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var req struct {
		Date   string `json:"date"`
		Kind   string `json:"kind"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	date, err := schedule.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}
	switch schedule.ExclusionKind(req.Kind) {
	case schedule.ExclusionVacation, schedule.ExclusionPersonal,
		schedule.ExclusionDesignatedHoliday, schedule.ExclusionOther:
	default:
		writeError(w, http.StatusBadRequest, "invalid_kind")
		return
	}

	exclusion := models.DateExclusion{
		ID:          uuid.NewString(),
		PlanGroupID: group.ID,
		Date:        date,
		Kind:        req.Kind,
		Reason:      req.Reason,
	}
	if err := a.db.WithContext(r.Context()).Create(&exclusion).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	writeJSON(w, http.StatusCreated, exclusion)
}

func (a *API) handleExclusionsDelete(w http.ResponseWriter, r *http.Request) {
	a.deleteGroupResource(w, r, &models.DateExclusion{}, chi.URLParam(r, "exclusionID"))
}

func (a *API) handleAcademiesList(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var academies []models.AcademyPeriod
	err := a.db.WithContext(r.Context()).
		Where("plan_group_id = ?", group.ID).
		Order("day_of_week, start_time").Find(&academies).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, academies)
}

func (a *API) handleAcademiesCreate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var req struct {
		Name          string `json:"name"`
		DayOfWeek     int    `json:"day_of_week"`
		StartTime     string `json:"start_time"`
		EndTime       string `json:"end_time"`
		TravelMinutes int    `json:"travel_minutes,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week")
		return
	}
	start, err := schedule.ParseClock(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time")
		return
	}
	end, err := schedule.ParseClock(req.EndTime)
	if err != nil || end <= start {
		writeError(w, http.StatusBadRequest, "invalid_end_time")
		return
	}
	if req.TravelMinutes < 0 {
		writeError(w, http.StatusBadRequest, "invalid_travel_minutes")
		return
	}

	academy := models.AcademyPeriod{
		ID:            uuid.NewString(),
		PlanGroupID:   group.ID,
		Name:          req.Name,
		DayOfWeek:     req.DayOfWeek,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		TravelMinutes: req.TravelMinutes,
	}
	if err := a.db.WithContext(r.Context()).Create(&academy).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	writeJSON(w, http.StatusCreated, academy)
}

func (a *API) handleAcademiesDelete(w http.ResponseWriter, r *http.Request) {
	a.deleteGroupResource(w, r, &models.AcademyPeriod{}, chi.URLParam(r, "academyID"))
}

type contentRequest struct {
	Title           string `json:"title"`
	ContentType     string `json:"content_type"`
	ContentKind     string `json:"content_kind,omitempty"`
	SubjectCategory string `json:"subject_category,omitempty"`

	TotalUnits     *int     `json:"total_units,omitempty"`
	PriorityWeight *float64 `json:"priority_weight,omitempty"`

	Strategic            *bool `json:"strategic,omitempty"`
	StrategicDaysPerWeek *int  `json:"strategic_days_per_week,omitempty"`

	MinutesPerPage       *float64 `json:"minutes_per_page,omitempty"`
	EpisodeMinutes       []int    `json:"episode_minutes,omitempty"`
	TotalDurationMinutes *int     `json:"total_duration_minutes,omitempty"`
}

func (a *API) handleContentsList(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var contents []models.ContentItem
	err := a.db.WithContext(r.Context()).
		Where("plan_group_id = ?", group.ID).
		Order("created_at").Find(&contents).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, contents)
}

func (a *API) handleContentsCreate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	switch schedule.ContentType(req.ContentType) {
	case schedule.ContentBook, schedule.ContentLecture, schedule.ContentCustom:
	default:
		writeError(w, http.StatusBadRequest, "invalid_content_type")
		return
	}
	if req.TotalUnits == nil || *req.TotalUnits < 0 {
		writeError(w, http.StatusBadRequest, "invalid_total_units")
		return
	}

	content := models.ContentItem{
		ID:              uuid.NewString(),
		PlanGroupID:     group.ID,
		Title:           req.Title,
		ContentType:     req.ContentType,
		ContentKind:     string(schedule.KindLearning),
		SubjectCategory: req.SubjectCategory,
		TotalUnits:      *req.TotalUnits,
	}
	if code, ok := applyContentRequest(&content, &req); !ok {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	if err := a.db.WithContext(r.Context()).Create(&content).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	a.publish(events.EventContentUpdated, events.Payload{"plan_group": group.ID, "content": content.ID})
	writeJSON(w, http.StatusCreated, content)
}

func (a *API) handleContentsUpdate(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	var content models.ContentItem
	err := a.db.WithContext(r.Context()).
		First(&content, "id = ? AND plan_group_id = ?", chi.URLParam(r, "contentID"), group.ID).Error
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	var req contentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Title != "" {
		content.Title = req.Title
	}
	if req.SubjectCategory != "" {
		content.SubjectCategory = req.SubjectCategory
	}
	if req.TotalUnits != nil {
		if *req.TotalUnits < 0 {
			writeError(w, http.StatusBadRequest, "invalid_total_units")
			return
		}
		content.TotalUnits = *req.TotalUnits
	}
	if code, ok := applyContentRequest(&content, &req); !ok {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	if err := a.db.WithContext(r.Context()).Save(&content).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidate(r, group.ID)
	a.publish(events.EventContentUpdated, events.Payload{"plan_group": group.ID, "content": content.ID})
	writeJSON(w, http.StatusOK, content)
}

func (a *API) handleContentsDelete(w http.ResponseWriter, r *http.Request) {
	a.deleteGroupResource(w, r, &models.ContentItem{}, chi.URLParam(r, "contentID"))
}

func applyContentRequest(content *models.ContentItem, req *contentRequest) (string, bool) {
	if req.ContentKind != "" {
		switch schedule.ContentKind(req.ContentKind) {
		case schedule.KindLearning, schedule.KindNonLearning, schedule.KindSelfStudy:
			content.ContentKind = req.ContentKind
		default:
			return "invalid_content_kind", false
		}
	}
	if req.PriorityWeight != nil {
		if *req.PriorityWeight < 0 || *req.PriorityWeight > 1 {
			return "invalid_priority_weight", false
		}
		content.PriorityWeight = *req.PriorityWeight
	}
	if req.Strategic != nil {
		content.Strategic = *req.Strategic
	}
	if req.StrategicDaysPerWeek != nil {
		if *req.StrategicDaysPerWeek < 0 || *req.StrategicDaysPerWeek > 7 {
			return "invalid_strategic_days", false
		}
		content.StrategicDaysPerWeek = *req.StrategicDaysPerWeek
	}
	if req.MinutesPerPage != nil {
		if *req.MinutesPerPage < 0 {
			return "invalid_minutes_per_page", false
		}
		content.MinutesPerPage = *req.MinutesPerPage
	}
	if req.EpisodeMinutes != nil {
		for _, minutes := range req.EpisodeMinutes {
			if minutes < 0 {
				return "invalid_episode_minutes", false
			}
		}
		content.EpisodeMinutes = req.EpisodeMinutes
	}
	if req.TotalDurationMinutes != nil {
		if *req.TotalDurationMinutes < 0 {
			return "invalid_total_duration", false
		}
		content.TotalDurationMinutes = *req.TotalDurationMinutes
	}
	return "", true
}

// deleteGroupResource removes one child row of a plan group after the usual
// ownership check.
func (a *API) deleteGroupResource(w http.ResponseWriter, r *http.Request, model any, resourceID string) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}
	if resourceID == "" {
		writeError(w, http.StatusBadRequest, "resource_id_required")
		return
	}

	result := a.db.WithContext(r.Context()).
		Where("id = ? AND plan_group_id = ?", resourceID, group.ID).Delete(model)
	if result.Error != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if result.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}

	a.invalidate(r, group.ID)
	w.WriteHeader(http.StatusNoContent)
}
