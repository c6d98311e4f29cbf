/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/studyforge/studyforge/internal/audit"
	"github.com/studyforge/studyforge/internal/models"
)

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.auditSvc == nil {
		writeError(w, http.StatusNotImplemented, "audit_disabled")
		return
	}

	filters := audit.QueryFilters{Limit: 100}

	q := r.URL.Query()
	if userID := q.Get("user_id"); userID != "" {
		filters.UserID = &userID
	}
	if planGroupID := q.Get("plan_group_id"); planGroupID != "" {
		filters.PlanGroupID = &planGroupID
	}
	if action := q.Get("action"); action != "" {
		act := models.AuditAction(action)
		filters.Action = &act
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		filters.StartTime = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		filters.EndTime = &t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		filters.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset")
			return
		}
		filters.Offset = n
	}

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"total": total,
	})
}
