/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for generated calendars
// and plan group reads.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/studyforge/studyforge/internal/schedule"
	"github.com/studyforge/studyforge/internal/telemetry"
)

// Default TTL values for different cache types.
const (
	DefaultCalendarTTL = 30 * time.Minute
	DefaultEntriesTTL  = 30 * time.Minute
	DefaultContentTTL  = 1 * time.Hour
)

// Key prefixes for Redis cache.
const (
	KeyCalendar = "studyforge:cache:calendar:" // + plan_group_id
	KeyEntries  = "studyforge:cache:entries:"  // + plan_group_id
	KeyContents = "studyforge:cache:contents:" // + plan_group_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CalendarTTL time.Duration
	EntriesTTL  time.Duration
	ContentTTL  time.Duration

	// If true, disable caching after a Redis error instead of retrying.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		CalendarTTL:    DefaultCalendarTTL,
		EntriesTTL:     DefaultEntriesTTL,
		ContentTTL:     DefaultContentTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance. A missing Redis is not an error; the
// cache starts disabled and every lookup misses.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Calendar caching

// GetCalendar retrieves the cached availability calendar for a plan group.
func (c *Cache) GetCalendar(ctx context.Context, planGroupID string) ([]schedule.DaySchedule, bool) {
	var days []schedule.DaySchedule
	found, err := c.get(ctx, KeyCalendar+planGroupID, &days)
	if err != nil || !found {
		telemetry.CacheHitsTotal.WithLabelValues("calendar", "miss").Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.WithLabelValues("calendar", "hit").Inc()
	c.logger.Debug().Str("plan_group", planGroupID).Int("days", len(days)).Msg("calendar cache hit")
	return days, true
}

// SetCalendar caches the availability calendar for a plan group.
func (c *Cache) SetCalendar(ctx context.Context, planGroupID string, days []schedule.DaySchedule) error {
	return c.set(ctx, KeyCalendar+planGroupID, days, c.config.CalendarTTL)
}

// InvalidateCalendar removes a plan group's calendar from cache.
func (c *Cache) InvalidateCalendar(ctx context.Context, planGroupID string) error {
	return c.delete(ctx, KeyCalendar+planGroupID)
}

// Entry caching

// CachedEntry is the flattened plan entry shape stored in Redis.
type CachedEntry struct {
	ID        string `json:"id"`
	ContentID string `json:"content_id"`
	Date      string `json:"date"`
	UnitStart int    `json:"unit_start"`
	UnitEnd   int    `json:"unit_end"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Partial   bool   `json:"is_partial"`
	Continued bool   `json:"is_continued"`
	Review    bool   `json:"is_review"`
}

// GetEntries retrieves the cached plan entries for a plan group.
func (c *Cache) GetEntries(ctx context.Context, planGroupID string) ([]CachedEntry, bool) {
	var entries []CachedEntry
	found, err := c.get(ctx, KeyEntries+planGroupID, &entries)
	if err != nil || !found {
		telemetry.CacheHitsTotal.WithLabelValues("entries", "miss").Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.WithLabelValues("entries", "hit").Inc()
	return entries, true
}

// SetEntries caches the plan entries for a plan group.
func (c *Cache) SetEntries(ctx context.Context, planGroupID string, entries []CachedEntry) error {
	return c.set(ctx, KeyEntries+planGroupID, entries, c.config.EntriesTTL)
}

// InvalidatePlanGroup removes every cache derived from a plan group.
func (c *Cache) InvalidatePlanGroup(ctx context.Context, planGroupID string) error {
	c.logger.Debug().Str("plan_group", planGroupID).Msg("invalidating plan group caches")
	if err := c.delete(ctx, KeyCalendar+planGroupID); err != nil {
		return err
	}
	if err := c.delete(ctx, KeyEntries+planGroupID); err != nil {
		return err
	}
	return c.delete(ctx, KeyContents+planGroupID)
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "studyforge:cache:*")
}
