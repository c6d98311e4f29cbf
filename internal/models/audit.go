/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction identifies what kind of action was audited.
type AuditAction string

const (
	AuditActionAPIKeyCreate    AuditAction = "apikey_create"
	AuditActionAPIKeyRevoke    AuditAction = "apikey_revoke"
	AuditActionPlanGenerate    AuditAction = "plan_generate"
	AuditActionPlanGroupCreate AuditAction = "plan_group_create"
	AuditActionPlanGroupUpdate AuditAction = "plan_group_update"
	AuditActionPlanGroupDelete AuditAction = "plan_group_delete"
)

// AuditLog records one security-relevant action.
type AuditLog struct {
	ID        string      `gorm:"type:uuid;primaryKey"`
	Timestamp time.Time   `gorm:"index;not null"`
	Action    AuditAction `gorm:"type:varchar(64);index;not null"`

	UserID      *string `gorm:"type:uuid;index"`
	PlanGroupID *string `gorm:"type:uuid;index"`

	Details map[string]any `gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
