/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists security-relevant events as queryable log rows.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/models"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to relevant events and logs them as audit entries. Blocks
// until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	apiKeyCreate := s.bus.Subscribe(events.EventAuditAPIKeyCreate)
	apiKeyRevoke := s.bus.Subscribe(events.EventAuditAPIKeyRevoke)
	planGenerate := s.bus.Subscribe(events.EventAuditPlanGenerate)
	groupCreated := s.bus.Subscribe(events.EventPlanGroupCreated)
	groupUpdated := s.bus.Subscribe(events.EventPlanGroupUpdated)
	groupDeleted := s.bus.Subscribe(events.EventPlanGroupDeleted)

	defer func() {
		s.bus.Unsubscribe(events.EventAuditAPIKeyCreate, apiKeyCreate)
		s.bus.Unsubscribe(events.EventAuditAPIKeyRevoke, apiKeyRevoke)
		s.bus.Unsubscribe(events.EventAuditPlanGenerate, planGenerate)
		s.bus.Unsubscribe(events.EventPlanGroupCreated, groupCreated)
		s.bus.Unsubscribe(events.EventPlanGroupUpdated, groupUpdated)
		s.bus.Unsubscribe(events.EventPlanGroupDeleted, groupDeleted)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-apiKeyCreate:
			s.logAuditEntry(ctx, models.AuditActionAPIKeyCreate, payload)

		case payload := <-apiKeyRevoke:
			s.logAuditEntry(ctx, models.AuditActionAPIKeyRevoke, payload)

		case payload := <-planGenerate:
			s.logAuditEntry(ctx, models.AuditActionPlanGenerate, payload)

		case payload := <-groupCreated:
			s.logAuditEntry(ctx, models.AuditActionPlanGroupCreate, payload)

		case payload := <-groupUpdated:
			s.logAuditEntry(ctx, models.AuditActionPlanGroupUpdate, payload)

		case payload := <-groupDeleted:
			s.logAuditEntry(ctx, models.AuditActionPlanGroupDelete, payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Action:    action,
		Details:   make(map[string]any),
	}

	if userID, ok := payload["user"].(string); ok && userID != "" {
		entry.UserID = &userID
	}
	if planGroupID, ok := payload["plan_group"].(string); ok && planGroupID != "" {
		entry.PlanGroupID = &planGroupID
	}

	for k, v := range payload {
		switch k {
		case "user", "plan_group":
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	UserID      *string
	PlanGroupID *string
	Action      *models.AuditAction
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

// Query retrieves audit logs with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.PlanGroupID != nil {
		query = query.Where("plan_group_id = ?", *filters.PlanGroupID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
