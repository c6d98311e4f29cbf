/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyforge/studyforge/internal/auth"
	"github.com/studyforge/studyforge/internal/events"
)

const defaultAPIKeyLifetime = 90 * 24 * time.Hour

func (a *API) handleAPIKeysList(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	keys, err := auth.ListAPIKeys(a.db.WithContext(r.Context()), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (a *API) handleAPIKeysCreate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Name          string `json:"name"`
		ExpiresInDays int    `json:"expires_in_days,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	lifetime := defaultAPIKeyLifetime
	if req.ExpiresInDays > 0 {
		lifetime = time.Duration(req.ExpiresInDays) * 24 * time.Hour
	}

	plaintext, key, err := auth.GenerateAPIKey(claims.UserID, req.Name, lifetime)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "key_generation_failed")
		return
	}
	if err := a.db.WithContext(r.Context()).Create(key).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.publish(events.EventAuditAPIKeyCreate, events.Payload{
		"user":   claims.UserID,
		"key_id": key.ID,
	})

	// The plaintext key is only ever returned here.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"key":        plaintext,
		"key_prefix": key.KeyPrefix,
		"expires_at": key.ExpiresAt,
	})
}

func (a *API) handleAPIKeysRevoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	keyID := chi.URLParam(r, "keyID")
	err := auth.RevokeAPIKey(a.db.WithContext(r.Context()), keyID, claims.UserID)
	if errors.Is(err, auth.ErrAPIKeyNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.publish(events.EventAuditAPIKeyRevoke, events.Payload{
		"user":   claims.UserID,
		"key_id": keyID,
	})
	w.WriteHeader(http.StatusNoContent)
}
