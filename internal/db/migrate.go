/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/studyforge/studyforge/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Accounts
		&models.User{},
		&models.APIKey{},

		// Plan definition
		&models.PlanGroup{},
		&models.AvailabilityBlock{},
		&models.DateExclusion{},
		&models.AcademyPeriod{},
		&models.ContentItem{},

		// Generated output
		&models.PlanEntry{},
		&models.PlanRun{},

		// Security
		&models.AuditLog{},
	); err != nil {
		return err
	}

	if err := applyPostgresUnitRangeGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresUnitRangeGuard rejects plan entries with inverted unit ranges
// or inverted clock windows at the database level.
func applyPostgresUnitRangeGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
CREATE OR REPLACE FUNCTION prevent_invalid_plan_entry()
RETURNS trigger
LANGUAGE plpgsql
AS $$
BEGIN
  IF NEW.unit_end < NEW.unit_start THEN
    RAISE EXCEPTION 'plan entry unit range is inverted'
      USING ERRCODE = '23514';
  END IF;

  IF NEW.start_time <> '' AND NEW.end_time <> '' AND NEW.end_time <= NEW.start_time THEN
    RAISE EXCEPTION 'plan entry time window is inverted'
      USING ERRCODE = '23514';
  END IF;

  RETURN NEW;
END;
$$;

DROP TRIGGER IF EXISTS trg_prevent_invalid_plan_entry ON plan_entries;

CREATE TRIGGER trg_prevent_invalid_plan_entry
BEFORE INSERT OR UPDATE OF unit_start, unit_end, start_time, end_time
ON plan_entries
FOR EACH ROW
EXECUTE FUNCTION prevent_invalid_plan_entry();
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres plan entry guard: %w", err)
	}

	return nil
}
