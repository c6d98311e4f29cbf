/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing for
// the planning pipeline and the HTTP surface.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP surface metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studyforge_api_request_duration_seconds",
		Help:    "HTTP request latency by method, endpoint and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyforge_api_requests_total",
		Help: "HTTP requests by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studyforge_api_active_connections",
		Help: "In-flight HTTP requests.",
	})
)

// Planning pipeline metrics.
var (
	PlanBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studyforge_plan_build_duration_seconds",
		Help:    "Wall time of one plan generation run by outcome.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})

	PlanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyforge_plan_runs_total",
		Help: "Plan generation runs by outcome.",
	}, []string{"status"})

	PlanEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyforge_plan_entries_total",
		Help: "Plan entries persisted per run, labelled by entry kind.",
	}, []string{"kind"})

	PackingShortfallUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studyforge_packing_shortfall_units_total",
		Help: "Units that did not fit into any study slot.",
	})

	EngineErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyforge_engine_errors_total",
		Help: "Engine failures by pipeline stage.",
	}, []string{"stage"})
)

// Database metrics, fed by the gorm callbacks in internal/db.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studyforge_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyforge_db_errors_total",
		Help: "Database errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "studyforge_db_connections_active",
		Help: "Open database connections.",
	})
)

// Cache metrics.
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studyforge_cache_hits_total",
		Help: "Cache lookups by entity and result.",
	}, []string{"entity", "result"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
