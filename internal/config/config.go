/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL (e.g., http://studyforge.example.com)
	DBBackend   DatabaseBackend
	DBDSN       string

	JWTSigningKey string

	// Redis cache for generated calendars and plan group reads.
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CalendarCacheTTL time.Duration

	// NATS event bus. When the URL is empty events stay in-process.
	NATSURL string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"STUDYFORGE_ENV", "SF_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"STUDYFORGE_HTTP_BIND", "SF_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"STUDYFORGE_HTTP_PORT", "SF_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"STUDYFORGE_BASE_URL", "SF_BASE_URL"}, ""),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"STUDYFORGE_DB_BACKEND", "SF_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"STUDYFORGE_DB_DSN", "SF_DB_DSN"}, ""),

		JWTSigningKey: getEnvAny([]string{"STUDYFORGE_JWT_SIGNING_KEY", "SF_JWT_SIGNING_KEY"}, ""),

		RedisAddr:        getEnvAny([]string{"STUDYFORGE_REDIS_ADDR", "SF_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:    getEnvAny([]string{"STUDYFORGE_REDIS_PASSWORD", "SF_REDIS_PASSWORD"}, ""),
		RedisDB:          getEnvIntAny([]string{"STUDYFORGE_REDIS_DB", "SF_REDIS_DB"}, 0),
		CalendarCacheTTL: time.Duration(getEnvIntAny([]string{"STUDYFORGE_CALENDAR_CACHE_TTL_MINUTES", "SF_CALENDAR_CACHE_TTL_MINUTES"}, 30)) * time.Minute,

		NATSURL: getEnvAny([]string{"STUDYFORGE_NATS_URL", "SF_NATS_URL"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"STUDYFORGE_TRACING_ENABLED", "SF_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"STUDYFORGE_OTLP_ENDPOINT", "SF_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"STUDYFORGE_TRACING_SAMPLE_RATE", "SF_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("STUDYFORGE_DB_DSN or SF_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("STUDYFORGE_JWT_SIGNING_KEY or SF_JWT_SIGNING_KEY must be provided")
	}

	if strings.EqualFold(cfg.Environment, "production") && len(cfg.JWTSigningKey) < 32 {
		return nil, fmt.Errorf("STUDYFORGE_JWT_SIGNING_KEY must be at least 32 bytes in production")
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":     "use STUDYFORGE_ENV (or SF_ENV)",
		"JWT_SIGNING_KEY": "use STUDYFORGE_JWT_SIGNING_KEY (or SF_JWT_SIGNING_KEY)",
		"TRACING_ENABLED": "use STUDYFORGE_TRACING_ENABLED (or SF_TRACING_ENABLED)",
		"OTLP_ENDPOINT":   "use STUDYFORGE_OTLP_ENDPOINT (or SF_OTLP_ENDPOINT)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
