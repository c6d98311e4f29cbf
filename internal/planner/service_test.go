package planner

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyforge/studyforge/internal/events"
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
		&models.AvailabilityBlock{},
		&models.DateExclusion{},
		&models.AcademyPeriod{},
		&models.ContentItem{},
		&models.PlanEntry{},
		&models.PlanRun{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func testService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	database := testDB(t)
	svc := New(database, nil, events.NewBus(), zerolog.Nop())
	return svc, database
}

// seedWeekPlan inserts a one-week plan group starting Monday 2024-01-01 with
// evening study blocks Monday through Sunday and one 120-page book.
func seedWeekPlan(t *testing.T, database *gorm.DB) (groupID, contentID string) {
	t.Helper()
	groupID = uuid.NewString()
	group := models.PlanGroup{
		ID:          groupID,
		UserID:      uuid.NewString(),
		Name:        "winter intensive",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		StudyDays:   6,
		ReviewDays:  1,
		ReviewScope: "week",
	}
	if err := database.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	for dow := 0; dow <= 6; dow++ {
		block := models.AvailabilityBlock{
			ID:          uuid.NewString(),
			PlanGroupID: groupID,
			DayOfWeek:   dow,
			StartTime:   "18:00",
			EndTime:     "22:00",
		}
		if err := database.Create(&block).Error; err != nil {
			t.Fatalf("seed block: %v", err)
		}
	}

	contentID = uuid.NewString()
	content := models.ContentItem{
		ID:             contentID,
		PlanGroupID:    groupID,
		Title:          "수학의 정석",
		ContentType:    "book",
		ContentKind:    "learning",
		TotalUnits:     120,
		MinutesPerPage: 2,
	}
	if err := database.Create(&content).Error; err != nil {
		t.Fatalf("seed content: %v", err)
	}
	return groupID, contentID
}

func TestGeneratePersistsEntriesAndRun(t *testing.T) {
	svc, database := testService(t)
	groupID, contentID := seedWeekPlan(t, database)

	run, err := svc.Generate(context.Background(), groupID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if run.Status != models.RunStatusSucceeded {
		t.Fatalf("expected succeeded run, got %s (error=%q shortfall=%d)",
			run.Status, run.Error, run.ShortfallUnits)
	}

	var entries []models.PlanEntry
	if err := database.Where("plan_group_id = ?", groupID).Find(&entries).Error; err != nil {
		t.Fatalf("load entries: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected persisted entries")
	}
	if len(entries) != run.EntryCount {
		t.Fatalf("run reports %d entries, found %d", run.EntryCount, len(entries))
	}

	covered := make(map[int]bool)
	sawReview := false
	for _, e := range entries {
		if e.ContentID != contentID {
			t.Fatalf("entry for unexpected content %s", e.ContentID)
		}
		if e.UnitEnd < e.UnitStart {
			t.Fatalf("inverted unit range %d..%d", e.UnitStart, e.UnitEnd)
		}
		if e.IsReview {
			sawReview = true
			continue
		}
		if e.StartTime == "" || e.EndTime == "" {
			t.Fatalf("study entry without clock window on %s", e.Date)
		}
		for u := e.UnitStart; u <= e.UnitEnd; u++ {
			if covered[u] {
				t.Fatalf("unit %d scheduled twice", u)
			}
			covered[u] = true
		}
	}
	if len(covered) != 120 {
		t.Fatalf("expected all 120 pages scheduled, got %d", len(covered))
	}
	if !sawReview {
		t.Fatal("expected review entries on the review day")
	}

	var storedRun models.PlanRun
	if err := database.First(&storedRun, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if storedRun.Status != models.RunStatusSucceeded {
		t.Fatalf("stored run status %s", storedRun.Status)
	}
}

func TestGenerateReplacesPreviousEntries(t *testing.T) {
	svc, database := testService(t)
	groupID, _ := seedWeekPlan(t, database)

	first, err := svc.Generate(context.Background(), groupID)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := svc.Generate(context.Background(), groupID)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	var count int64
	if err := database.Model(&models.PlanEntry{}).
		Where("plan_group_id = ?", groupID).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if int(count) != second.EntryCount {
		t.Fatalf("expected only the second run's %d entries, found %d", second.EntryCount, count)
	}

	var stale int64
	if err := database.Model(&models.PlanEntry{}).
		Where("plan_run_id = ?", first.ID).Count(&stale).Error; err != nil {
		t.Fatalf("count stale entries: %v", err)
	}
	if stale != 0 {
		t.Fatalf("expected first run's entries removed, found %d", stale)
	}
}

func TestGenerateRecordsFailedRunWithoutCapacity(t *testing.T) {
	svc, database := testService(t)
	groupID, _ := seedWeekPlan(t, database)

	// Remove every availability block so no study day has capacity.
	if err := database.Where("plan_group_id = ?", groupID).
		Delete(&models.AvailabilityBlock{}).Error; err != nil {
		t.Fatalf("clear blocks: %v", err)
	}

	run, err := svc.Generate(context.Background(), groupID)
	if err == nil {
		t.Fatal("expected generation to fail")
	}
	if run == nil || run.Status != models.RunStatusFailed {
		t.Fatalf("expected failed run record, got %+v", run)
	}

	var stored models.PlanRun
	if err := database.First(&stored, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("expected failure persisted: %v", err)
	}
	if stored.Error == "" {
		t.Fatal("expected error message on failed run")
	}
}

func TestGenerateUnknownGroup(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.Generate(context.Background(), uuid.NewString())
	if err == nil {
		t.Fatal("expected error for unknown plan group")
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	svc, database := testService(t)
	groupID, _ := seedWeekPlan(t, database)

	result, err := svc.Preview(context.Background(), groupID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(result.Segments) == 0 {
		t.Fatal("expected preview segments")
	}
	if len(result.Calendar) != 7 {
		t.Fatalf("expected 7 calendar days, got %d", len(result.Calendar))
	}

	var entries, runs int64
	database.Model(&models.PlanEntry{}).Where("plan_group_id = ?", groupID).Count(&entries)
	database.Model(&models.PlanRun{}).Where("plan_group_id = ?", groupID).Count(&runs)
	if entries != 0 || runs != 0 {
		t.Fatalf("preview persisted state: entries=%d runs=%d", entries, runs)
	}
}

func TestGenerateWarningOnConstraintViolation(t *testing.T) {
	svc, database := testService(t)
	groupID, _ := seedWeekPlan(t, database)

	if err := database.Model(&models.PlanGroup{}).Where("id = ?", groupID).
		Updates(map[string]any{
			"required_subjects": `["영어"]`,
			"constraint_mode":   "warning",
		}).Error; err != nil {
		t.Fatalf("update constraints: %v", err)
	}

	run, err := svc.Generate(context.Background(), groupID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if run.Status != models.RunStatusWarning {
		t.Fatalf("expected warning run, got %s", run.Status)
	}
	if len(run.Violations) == 0 {
		t.Fatal("expected recorded violations")
	}
}

func TestCalendarComputesSevenDays(t *testing.T) {
	svc, database := testService(t)
	groupID, _ := seedWeekPlan(t, database)

	days, err := svc.Calendar(context.Background(), groupID)
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
}
