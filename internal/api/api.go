/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: plan group management and the
// generation endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/audit"
	"github.com/studyforge/studyforge/internal/auth"
	"github.com/studyforge/studyforge/internal/cache"
	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/export"
	"github.com/studyforge/studyforge/internal/logbuffer"
	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/planner"
)

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	planner   *planner.Service
	cache     *cache.Cache
	auditSvc  *audit.Service
	logBuffer *logbuffer.Buffer
	export    *export.Service
	bus       planner.Publisher
	logger    zerolog.Logger
}

// New creates the API router wrapper. cache, auditSvc and logBuf may be nil.
func New(db *gorm.DB, jwtSecret []byte, plannerSvc *planner.Service, entityCache *cache.Cache, auditSvc *audit.Service, logBuf *logbuffer.Buffer, bus planner.Publisher, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		planner:   plannerSvc,
		cache:     entityCache,
		auditSvc:  auditSvc,
		logBuffer: logBuf,
		export:    export.New(db, logger),
		bus:       bus,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/plan-groups", func(r chi.Router) {
				r.Get("/", a.handlePlanGroupsList)
				r.Post("/", a.handlePlanGroupsCreate)

				r.Route("/{planGroupID}", func(r chi.Router) {
					r.Get("/", a.handlePlanGroupsGet)
					r.Patch("/", a.handlePlanGroupsUpdate)
					r.With(a.requireRoles(models.RoleAdmin, models.RolePlanner)).Delete("/", a.handlePlanGroupsDelete)

					r.Route("/availability-blocks", func(r chi.Router) {
						r.Get("/", a.handleBlocksList)
						r.Post("/", a.handleBlocksCreate)
						r.Delete("/{blockID}", a.handleBlocksDelete)
					})
					r.Route("/exclusions", func(r chi.Router) {
						r.Get("/", a.handleExclusionsList)
						r.Post("/", a.handleExclusionsCreate)
						r.Post("/import", a.handleExclusionsImport)
						r.Delete("/{exclusionID}", a.handleExclusionsDelete)
					})
					r.Route("/academy-periods", func(r chi.Router) {
						r.Get("/", a.handleAcademiesList)
						r.Post("/", a.handleAcademiesCreate)
						r.Delete("/{academyID}", a.handleAcademiesDelete)
					})
					r.Route("/contents", func(r chi.Router) {
						r.Get("/", a.handleContentsList)
						r.Post("/", a.handleContentsCreate)
						r.Patch("/{contentID}", a.handleContentsUpdate)
						r.Delete("/{contentID}", a.handleContentsDelete)
					})

					r.Post("/generate", a.handlePlanGenerate)
					r.Post("/preview", a.handlePlanPreview)
					r.Get("/calendar", a.handlePlanCalendar)
					r.Get("/entries", a.handlePlanEntries)
					r.Get("/runs", a.handlePlanRunsList)
					r.Get("/export.ics", a.handlePlanExportICal)
					r.Get("/export.html", a.handlePlanExportSheet)
				})
			})

			pr.Get("/plan-runs/{runID}", a.handlePlanRunsGet)

			pr.With(a.requireRoles(models.RoleAdmin)).Get("/audit", a.handleAuditList)

			pr.Route("/logs", func(r chi.Router) {
				r.Use(a.requireRoles(models.RoleAdmin))
				r.Get("/", a.handleLogsList)
				r.Get("/components", a.handleLogComponents)
				r.Get("/stats", a.handleLogStats)
			})

			pr.Route("/api-keys", func(r chi.Router) {
				r.Get("/", a.handleAPIKeysList)
				r.Post("/", a.handleAPIKeysCreate)
				r.Delete("/{keyID}", a.handleAPIKeysRevoke)
			})
		})
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) requireRoles(allowed ...models.RoleName) func(http.Handler) http.Handler {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[string(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range claims.Roles {
				if _, exists := allowedSet[role]; exists {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "insufficient_role")
		})
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publish is a nil-safe event emit.
func (a *API) publish(eventType events.EventType, payload events.Payload) {
	if a.bus != nil {
		a.bus.Publish(eventType, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
