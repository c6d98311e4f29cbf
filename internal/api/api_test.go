package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/studyforge/studyforge/internal/audit"
	"github.com/studyforge/studyforge/internal/auth"
	"github.com/studyforge/studyforge/internal/events"
	"github.com/studyforge/studyforge/internal/models"
	"github.com/studyforge/studyforge/internal/planner"
)

var testSecret = []byte("api-test-secret")

func testServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&id="+uuid.NewString()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = database.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.PlanGroup{},
		&models.AvailabilityBlock{},
		&models.DateExclusion{},
		&models.AcademyPeriod{},
		&models.ContentItem{},
		&models.PlanEntry{},
		&models.PlanRun{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := events.NewBus()
	plannerSvc := planner.New(database, nil, bus, zerolog.Nop())
	auditSvc := audit.NewService(database, bus, zerolog.Nop())
	a := New(database, testSecret, plannerSvc, nil, auditSvc, nil, bus, zerolog.Nop())

	router := chi.NewRouter()
	a.Routes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, database
}

func seedUser(t *testing.T, database *gorm.DB, role models.RoleName) (string, string) {
	t.Helper()
	user := models.User{
		ID:    uuid.NewString(),
		Email: uuid.NewString() + "@example.com",
		Name:  "tester",
		Role:  role,
	}
	if err := database.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := auth.Issue(testSecret, auth.Claims{
		UserID: user.ID,
		Roles:  []string{string(role)},
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user.ID, token
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthNoAuth(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestPlanGroupsRequireAuth(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/plan-groups")
	if err != nil {
		t.Fatalf("GET plan-groups: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlanGroupLifecycle(t *testing.T) {
	srv, database := testServer(t)
	_, token := seedUser(t, database, models.RoleStudent)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/plan-groups", token, map[string]any{
		"name":         "winter plan",
		"period_start": "2024-01-01",
		"period_end":   "2024-01-07",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group: expected 201, got %d", resp.StatusCode)
	}
	var group models.PlanGroup
	decodeBody(t, resp, &group)
	if group.StudyDays != 6 || group.ReviewDays != 1 {
		t.Fatalf("expected default 6/1 cycle, got %d/%d", group.StudyDays, group.ReviewDays)
	}

	base := srv.URL + "/api/v1/plan-groups/" + group.ID

	for dow := 0; dow <= 6; dow++ {
		resp = doJSON(t, http.MethodPost, base+"/availability-blocks", token, map[string]any{
			"day_of_week": dow,
			"start_time":  "19:00",
			"end_time":    "22:00",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create block: expected 201, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp = doJSON(t, http.MethodPost, base+"/contents", token, map[string]any{
		"title":            "개념원리 수학",
		"content_type":     "book",
		"total_units":      60,
		"minutes_per_page": 2,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create content: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/generate", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: expected 200, got %d", resp.StatusCode)
	}
	var run models.PlanRun
	decodeBody(t, resp, &run)
	if run.Status != models.RunStatusSucceeded {
		t.Fatalf("expected succeeded run, got %s", run.Status)
	}
	if run.EntryCount == 0 {
		t.Fatal("expected generated entries")
	}

	resp = doJSON(t, http.MethodGet, base+"/entries", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("entries: expected 200, got %d", resp.StatusCode)
	}
	var entries []map[string]any
	decodeBody(t, resp, &entries)
	if len(entries) != run.EntryCount {
		t.Fatalf("expected %d entries, got %d", run.EntryCount, len(entries))
	}

	resp = doJSON(t, http.MethodGet, base+"/calendar", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("calendar: expected 200, got %d", resp.StatusCode)
	}
	var days []map[string]any
	decodeBody(t, resp, &days)
	if len(days) != 7 {
		t.Fatalf("expected 7 calendar days, got %d", len(days))
	}
}

func TestPlanGroupOwnershipEnforced(t *testing.T) {
	srv, database := testServer(t)
	ownerID, _ := seedUser(t, database, models.RoleStudent)
	_, otherToken := seedUser(t, database, models.RoleStudent)

	group := models.PlanGroup{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Name:        "private plan",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		StudyDays:   6,
		ReviewDays:  1,
	}
	if err := database.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/plan-groups/"+group.ID, otherToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}
}

func TestGenerateWithoutCapacityReturns422(t *testing.T) {
	srv, database := testServer(t)
	_, token := seedUser(t, database, models.RoleStudent)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/plan-groups", token, map[string]any{
		"name":         "empty plan",
		"period_start": "2024-01-01",
		"period_end":   "2024-01-07",
	})
	var group models.PlanGroup
	decodeBody(t, resp, &group)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/plan-groups/"+group.ID+"/generate", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without availability, got %d", resp.StatusCode)
	}
}

func TestPlanExportAndBusyImport(t *testing.T) {
	srv, database := testServer(t)
	ownerID, token := seedUser(t, database, models.RoleStudent)

	group := models.PlanGroup{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Name:        "export plan",
		PeriodStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC),
		StudyDays:   6,
		ReviewDays:  1,
	}
	if err := database.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/plan-groups/"+group.ID+"/export.ics", token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("expected calendar content type, got %q", ct)
	}

	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"SUMMARY:Dentist",
		"DTSTART:20240104T100000",
		"END:VEVENT",
		"END:VCALENDAR",
	}, "\r\n")
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/plan-groups/"+group.ID+"/exclusions/import", strings.NewReader(feed))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/calendar")
	importResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	defer importResp.Body.Close()
	if importResp.StatusCode != http.StatusOK {
		t.Fatalf("import: expected 200, got %d", importResp.StatusCode)
	}

	var count int64
	database.Model(&models.DateExclusion{}).Where("plan_group_id = ?", group.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected one imported exclusion, got %d", count)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, database := testServer(t)
	_, token := seedUser(t, database, models.RolePlanner)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/api-keys", token, map[string]any{
		"name": "ci key",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create key: expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	decodeBody(t, resp, &created)
	if created.Key == "" {
		t.Fatal("expected plaintext key in create response")
	}

	// The key authenticates requests via X-API-Key.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/plan-groups", nil)
	req.Header.Set("X-API-Key", created.Key)
	keyResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request with api key: %v", err)
	}
	keyResp.Body.Close()
	if keyResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d", keyResp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/api-keys/"+created.ID, token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke key: expected 204, got %d", resp.StatusCode)
	}

	keyResp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request with revoked key: %v", err)
	}
	keyResp2.Body.Close()
	if keyResp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with revoked key, got %d", keyResp2.StatusCode)
	}
}
