package export

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyforge/studyforge/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&id="+uuid.NewString()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = database.AutoMigrate(
		&models.PlanGroup{},
		&models.DateExclusion{},
		&models.ContentItem{},
		&models.PlanEntry{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func seedGroup(t *testing.T, database *gorm.DB) *models.PlanGroup {
	t.Helper()
	group := &models.PlanGroup{
		ID:          uuid.NewString(),
		UserID:      uuid.NewString(),
		Name:        "Winter Plan",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		StudyDays:   6,
		ReviewDays:  1,
	}
	if err := database.Create(group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return group
}

func seedEntry(t *testing.T, database *gorm.DB, group *models.PlanGroup, date time.Time, start, end string) *models.PlanEntry {
	t.Helper()
	content := &models.ContentItem{
		ID:              uuid.NewString(),
		PlanGroupID:     group.ID,
		Title:           "개념원리 수학",
		ContentType:     "book",
		ContentKind:     "learning",
		SubjectCategory: "수학",
		TotalUnits:      120,
		MinutesPerPage:  2,
	}
	if err := database.Create(content).Error; err != nil {
		t.Fatalf("seed content: %v", err)
	}
	entry := &models.PlanEntry{
		ID:          uuid.NewString(),
		PlanGroupID: group.ID,
		ContentID:   content.ID,
		Date:        date,
		UnitStart:   1,
		UnitEnd:     20,
		StartTime:   start,
		EndTime:     end,
	}
	if err := database.Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entry
}

func TestPlanICalRendersTimedAndAllDayEvents(t *testing.T) {
	database := testDB(t)
	group := seedGroup(t, database)
	seedEntry(t, database, group, group.PeriodStart, "19:00", "20:30")
	seedEntry(t, database, group, group.PeriodStart.AddDate(0, 0, 1), "", "")

	svc := New(database, zerolog.Nop())
	result, err := svc.PlanICal(context.Background(), group)
	if err != nil {
		t.Fatalf("PlanICal: %v", err)
	}

	ical := string(result.Data)
	if got := strings.Count(ical, "BEGIN:VEVENT"); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	if !strings.Contains(ical, "DTSTART:20240101T190000") {
		t.Fatalf("expected floating start time, got:\n%s", ical)
	}
	if !strings.Contains(ical, "DTSTART;VALUE=DATE:20240102") {
		t.Fatalf("expected all-day event for unscheduled entry, got:\n%s", ical)
	}
	if !strings.Contains(result.Filename, "winter-plan") {
		t.Fatalf("unexpected filename %q", result.Filename)
	}
}

func TestImportBusyICalCreatesExclusions(t *testing.T) {
	database := testDB(t)
	group := seedGroup(t, database)

	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:Family trip",
		"DTSTART:20240103T090000",
		"DTEND:20240103T180000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:Outside period",
		"DTSTART:20240201T090000",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")

	svc := New(database, zerolog.Nop())
	result, err := svc.ImportBusyICal(context.Background(), group, strings.NewReader(feed))
	if err != nil {
		t.Fatalf("ImportBusyICal: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("expected 1 imported / 1 skipped, got %d/%d", result.Imported, result.Skipped)
	}

	var exclusion models.DateExclusion
	if err := database.First(&exclusion, "plan_group_id = ?", group.ID).Error; err != nil {
		t.Fatalf("load exclusion: %v", err)
	}
	if exclusion.Kind != "personal" || exclusion.Reason != "Family trip" {
		t.Fatalf("unexpected exclusion: %+v", exclusion)
	}

	// Re-importing the same feed must not duplicate the exclusion.
	result, err = svc.ImportBusyICal(context.Background(), group, strings.NewReader(feed))
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if result.Imported != 0 {
		t.Fatalf("expected idempotent import, got %d new exclusions", result.Imported)
	}
}

func TestPlanSheetGroupsByDate(t *testing.T) {
	database := testDB(t)
	group := seedGroup(t, database)
	seedEntry(t, database, group, group.PeriodStart, "19:00", "20:30")

	svc := New(database, zerolog.Nop())
	data, err := svc.PlanSheet(context.Background(), group)
	if err != nil {
		t.Fatalf("PlanSheet: %v", err)
	}

	page := string(data)
	if !strings.Contains(page, "Monday, January 1") {
		t.Fatalf("expected day heading, got:\n%s", page)
	}
	if !strings.Contains(page, "19:00 - 20:30") {
		t.Fatal("expected clock window in sheet")
	}
	if !strings.Contains(page, "개념원리 수학") {
		t.Fatal("expected content title in sheet")
	}
}
