/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the HTTP stack: router, middleware, dependencies and
// background workers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/api"
	"github.com/studyforge/studyforge/internal/audit"
	"github.com/studyforge/studyforge/internal/cache"
	"github.com/studyforge/studyforge/internal/config"
	"github.com/studyforge/studyforge/internal/db"
	"github.com/studyforge/studyforge/internal/eventbus"
	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/logbuffer"
	"github.com/studyforge/studyforge/internal/planner"
	"github.com/studyforge/studyforge/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       *events.Bus
	natsBus   *eventbus.NATSBus
	planner   *planner.Service
	auditSvc  *audit.Service
	logBuffer *logbuffer.Buffer
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("studyforge-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Redis cache for calendars and entry lists. Optional; the planner and
	// API run uncached when Redis is unreachable.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	if s.cfg.CalendarCacheTTL > 0 {
		cacheCfg.CalendarTTL = s.cfg.CalendarCacheTTL
	}
	entityCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
	} else {
		s.cache = entityCache
		s.DeferClose(func() error { return s.cache.Close() })
	}

	// NATS mirrors events across instances. Falls back to local-only
	// delivery when the broker is unreachable.
	natsBus, err := eventbus.NewNATSBus(eventbus.DefaultNATSConfig(s.cfg.NATSURL), s.bus, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("nats bus unavailable, events stay in-process")
	} else {
		s.natsBus = natsBus
		s.DeferClose(func() error { return s.natsBus.Close() })
	}

	// Audit rows are written from local bus deliveries only, so each action
	// is recorded once even when NATS mirrors it to other instances.
	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.planner = planner.New(database, s.cache, s.publisher(), s.logger)
	s.api = api.New(s.db, []byte(s.cfg.JWTSigningKey), s.planner, s.cache, s.auditSvc, s.logBuffer, s.publisher(), s.logger)

	return nil
}

// publisher returns the widest event sink available.
func (s *Server) publisher() planner.Publisher {
	if s.natsBus != nil {
		return s.natsBus
	}
	return s.bus
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Database connection pool metrics.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener drops cached calendars and entry lists when a
// plan group changes. Mutations through this instance's API invalidate
// synchronously; this listener covers events mirrored from other instances.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	groupUpdated := s.subscribe(events.EventPlanGroupUpdated)
	groupDeleted := s.subscribe(events.EventPlanGroupDeleted)
	contentUpdated := s.subscribe(events.EventContentUpdated)
	planGenerated := s.subscribe(events.EventPlanGenerated)

	defer func() {
		s.unsubscribe(events.EventPlanGroupUpdated, groupUpdated)
		s.unsubscribe(events.EventPlanGroupDeleted, groupDeleted)
		s.unsubscribe(events.EventContentUpdated, contentUpdated)
		s.unsubscribe(events.EventPlanGenerated, planGenerated)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidate := func(payload events.Payload) {
		if planGroupID, ok := payload["plan_group"].(string); ok && planGroupID != "" {
			if err := s.cache.InvalidatePlanGroup(ctx, planGroupID); err != nil {
				s.logger.Warn().Err(err).Str("plan_group", planGroupID).Msg("cache invalidation failed")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case payload := <-groupUpdated:
			invalidate(payload)
		case payload := <-groupDeleted:
			invalidate(payload)
		case payload := <-contentUpdated:
			invalidate(payload)
		case payload := <-planGenerated:
			// Another instance generated a plan; drop stale entry lists.
			invalidate(payload)
		}
	}
}

func (s *Server) subscribe(eventType events.EventType) events.Subscriber {
	if s.natsBus != nil {
		return s.natsBus.Subscribe(eventType)
	}
	return s.bus.Subscribe(eventType)
}

func (s *Server) unsubscribe(eventType events.EventType, sub events.Subscriber) {
	if s.natsBus != nil {
		s.natsBus.Unsubscribe(eventType, sub)
		return
	}
	s.bus.Unsubscribe(eventType, sub)
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
