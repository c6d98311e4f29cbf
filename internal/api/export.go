/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"
)

// handlePlanExportICal streams the generated plan as an iCal feed.
func (a *API) handlePlanExportICal(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	result, err := a.export.PlanICal(r.Context(), group)
	if err != nil {
		a.logger.Error().Err(err).Str("plan_group", group.ID).Msg("ical export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// handlePlanExportSheet renders the plan as a printable HTML sheet.
func (a *API) handlePlanExportSheet(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	data, err := a.export.PlanSheet(r.Context(), group)
	if err != nil {
		a.logger.Error().Err(err).Str("plan_group", group.ID).Msg("sheet export failed")
		writeError(w, http.StatusInternalServerError, "export_failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleExclusionsImport accepts an iCal feed of busy events and records the
// covered dates as personal exclusions.
func (a *API) handleExclusionsImport(w http.ResponseWriter, r *http.Request) {
	group, ok := a.loadGroup(w, r)
	if !ok {
		return
	}

	result, err := a.export.ImportBusyICal(r.Context(), group, r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ical")
		return
	}

	if result.Imported > 0 {
		a.invalidate(r, group.ID)
	}

	writeJSON(w, http.StatusOK, result)
}
