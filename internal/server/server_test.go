package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sprintlens/internal/analytics"
	"sprintlens/internal/config"
	"sprintlens/internal/db"
	"sprintlens/internal/engine"
	"sprintlens/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	DB     *sql.DB
	client *http.Client
}

func ptr(v float64) *float64 { return &v }

// newTestServer seeds c-a (u-owner owner, u-mem member owning p-a1, u-view
// viewer) and c-b (u-other owner, p-b), with one task in each project.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), nil)
	seed(t, e)

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{URL: srv.URL, Engine: e, DB: conn, client: srv.Client()}
}

func seed(t *testing.T, e engine.Engine) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []engine.UserCreateOptions{
		{ID: "u-owner", Name: "Olga", HourlyRate: ptr(50)},
		{ID: "u-mem", Name: "Mika", HourlyRate: ptr(40)},
		{ID: "u-view", Name: "Vera"},
		{ID: "u-other", Name: "Bea"},
	} {
		if _, err := e.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	for _, c := range []engine.CompanyCreateOptions{
		{ID: "c-a", Name: "Acme", OwnerID: "u-owner"},
		{ID: "c-b", Name: "Bolt", OwnerID: "u-other"},
	} {
		if _, err := e.CreateCompany(ctx, c); err != nil {
			t.Fatalf("create company: %v", err)
		}
	}
	for _, m := range []engine.CompanyMemberOptions{
		{CompanyID: "c-a", UserID: "u-mem", Role: "member"},
		{CompanyID: "c-a", UserID: "u-view", Role: "viewer"},
	} {
		if _, err := e.AddCompanyMember(ctx, m); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	for _, p := range []engine.ProjectCreateOptions{
		{ID: "p-a1", CompanyID: "c-a", Name: "Alpha", DefaultHourlyRate: ptr(20), OwnerID: "u-mem"},
		{ID: "p-b", CompanyID: "c-b", Name: "Beta", OwnerID: "u-other"},
	} {
		if _, err := e.CreateProject(ctx, p); err != nil {
			t.Fatalf("create project: %v", err)
		}
	}
	for _, task := range []engine.TaskCreateOptions{
		{ID: "t-a1", ProjectID: "p-a1", Title: "Alpha work", Status: "DONE", AssigneeID: "u-mem", EstimateHours: ptr(2), ActualHours: ptr(3)},
		{ID: "t-b1", ProjectID: "p-b", Title: "Beta work", Status: "DONE", AssigneeID: "u-other", EstimateHours: ptr(8)},
	} {
		if _, err := e.CreateTask(ctx, task); err != nil {
			t.Fatalf("create task: %v", err)
		}
	}
}

func as(user, company string) map[string]string {
	h := map[string]string{}
	if user != "" {
		h["X-Actor-Id"] = user
	}
	if company != "" {
		h["X-Company-Id"] = company
	}
	return h
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope %s: %v", data, err)
	}
	return env.Error.Code
}

func TestProductivityIsTenantScoped(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/productivity", nil, as("u-owner", "c-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("productivity status %d: %s", res.StatusCode, data)
	}
	var report analytics.ProductivityReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.General.TotalTasks != 1 || report.General.CompletedTasks != 1 {
		t.Fatalf("expected only company a's task, got %+v", report.General)
	}
	for _, m := range report.ByMember {
		if m.MemberID == "u-other" {
			t.Fatalf("member of company b leaked: %+v", m)
		}
	}
}

func TestEmptyCompanyReturnsZeroReport(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	if _, err := srv.Engine.CreateCompany(ctx, engine.CompanyCreateOptions{ID: "c-empty", Name: "Empty", OwnerID: "u-owner"}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/productivity", nil, as("u-owner", "c-empty"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	body := string(data)
	for _, want := range []string{`"totalTasks":0`, `"completedTasks":0`, `"completionRate":0`, `"efficiency":0`, `"byMember":[]`, `"bySprint":[]`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
}

func TestForeignProjectIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	for _, route := range []string{
		"/v1/analytics/productivity?projectId=p-b",
		"/v1/analytics/costs?projectId=p-b",
		"/v1/analytics/activity-heatmap?projectId=p-b",
		"/v1/projects/p-b/summary",
	} {
		res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+route, nil, as("u-owner", "c-a"))
		if res.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d %s", route, res.StatusCode, data)
		}
		if code := errorCode(t, data); code != "not_found" {
			t.Fatalf("%s: expected not_found, got %s", route, code)
		}
		if strings.Contains(string(data), "Beta") {
			t.Fatalf("%s: leaked foreign project data: %s", route, data)
		}
	}
}

func TestAccessErrorsMapToStatus(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name    string
		route   string
		headers map[string]string
		status  int
		code    string
	}{
		{"no company", "/v1/analytics/productivity", as("u-owner", ""), http.StatusBadRequest, "company_required"},
		{"no company beats no user", "/v1/analytics/productivity", nil, http.StatusBadRequest, "company_required"},
		{"no user", "/v1/analytics/productivity", as("", "c-a"), http.StatusUnauthorized, "unauthorized"},
		{"not a member", "/v1/analytics/productivity", as("u-other", "c-a"), http.StatusForbidden, "forbidden"},
		{"not elevated", "/v1/analytics/costs", as("u-mem", "c-a"), http.StatusForbidden, "forbidden"},
		{"heatmap for members", "/v1/analytics/activity-heatmap", as("u-mem", "c-a"), http.StatusOK, ""},
		{"summary without project membership", "/v1/projects/p-a1/summary", as("u-view", "c-a"), http.StatusForbidden, "forbidden"},
		{"bad date", "/v1/analytics/quality?startDate=yesterday", as("u-owner", "c-a"), http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+tc.route, nil, tc.headers)
		if res.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d %s", tc.name, tc.status, res.StatusCode, data)
		}
		if tc.code != "" {
			if code := errorCode(t, data); code != tc.code {
				t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, code)
			}
		}
	}
}

func TestBearerTokenCarriesCompany(t *testing.T) {
	srv := newTestServer(t)
	token, err := SignToken(testSecret, "u-owner", "c-a", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/compare-projects", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("compare status %d: %s", res.StatusCode, data)
	}
	var report analytics.ComparisonReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Comparison) != 1 || report.Comparison[0].ProjectID != "p-a1" {
		t.Fatalf("unexpected comparison %+v", report.Comparison)
	}

	// the header overrides the claim
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/compare-projects", nil, map[string]string{
		"Authorization": "Bearer " + token,
		"X-Company-Id":  "c-b",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign company, got %d %s", res.StatusCode, data)
	}

	forged, _ := SignToken("other-secret", "u-owner", "c-a", time.Hour)
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/compare-projects", nil, map[string]string{"Authorization": "Bearer " + forged})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d %s", res.StatusCode, data)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), "u-mem", "ci", "u-owner")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"X-Api-Key": plain, "X-Company-Id": "c-a"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list projects status %d: %s", res.StatusCode, data)
	}
	var projects []ProjectResponse
	if err := json.Unmarshal(data, &projects); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p-a1" {
		t.Fatalf("expected the member's project only, got %+v", projects)
	}

	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/projects", nil, map[string]string{"X-Api-Key": "sl_wrong", "X-Company-Id": "c-a"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", res.StatusCode)
	}
}

func TestTaskWritesRespectProjectAccess(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/v1/projects/p-a1"

	res, data := doJSON(t, srv.client, http.MethodPost, base+"/tasks", map[string]any{"title": "Sneaky"}, as("u-view", "c-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer outside project: expected 403, got %d %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/sprints", map[string]any{"name": "S1", "start_date": "2024-02-01", "end_date": "2024-02-14"}, as("u-mem", "c-a"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("project owner creates sprint: %d %s", res.StatusCode, data)
	}
	var sprint SprintResponse
	_ = json.Unmarshal(data, &sprint)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/tasks", map[string]any{
		"title":          "Build it",
		"sprint_id":      sprint.ID,
		"assignee_id":    "u-mem",
		"estimate_hours": 4,
	}, as("u-mem", "c-a"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, data)
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Status != "BACKLOG" {
		t.Fatalf("expected default status BACKLOG, got %s", task.Status)
	}

	res, data = doJSON(t, srv.client, http.MethodPatch, base+"/tasks/"+task.ID, map[string]any{
		"status":       "DONE",
		"actual_hours": 5,
		"sprint_id":    "",
	}, as("u-owner", "c-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update task: %d %s", res.StatusCode, data)
	}
	var updated TaskResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Status != "DONE" || updated.SprintID != nil || updated.ActualHours == nil || *updated.ActualHours != 5 {
		t.Fatalf("unexpected update result %+v", updated)
	}

	res, data = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/v1/projects/p-a1/tasks/t-b1", map[string]any{"title": "x"}, as("u-owner", "c-a"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("task of another project: expected 404, got %d %s", res.StatusCode, data)
	}

	res, data = doJSON(t, srv.client, http.MethodGet, base+"/tasks?status=done", nil, as("u-mem", "c-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, data)
	}
	var done []TaskResponse
	_ = json.Unmarshal(data, &done)
	if len(done) != 2 {
		t.Fatalf("expected 2 done tasks, got %d", len(done))
	}

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/tasks", map[string]any{"title": "bad", "sprint_id": "nope"}, as("u-mem", "c-a"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown sprint: expected 400, got %d %s", res.StatusCode, data)
	}
}

func TestCreateProjectRequiresCompanyAdmin(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"name": "Gamma"}, as("u-mem", "c-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member: expected 403, got %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"id": "p-g", "name": "Gamma"}, as("u-owner", "c-a"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("owner: expected 201, got %d %s", res.StatusCode, data)
	}
	var p ProjectResponse
	_ = json.Unmarshal(data, &p)
	if p.CompanyID != "c-a" || p.ID != "p-g" {
		t.Fatalf("unexpected project %+v", p)
	}
}

func TestUnexpectedErrorsHideCause(t *testing.T) {
	srv := newTestServer(t)
	srv.DB.Close()
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/productivity", nil, as("u-owner", "c-a"))
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d %s", res.StatusCode, data)
	}
	if code := errorCode(t, data); code != "internal_error" {
		t.Fatalf("expected internal_error, got %s", code)
	}
	if strings.Contains(string(data), "closed") {
		t.Fatalf("cause leaked: %s", data)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/analytics/productivity", nil, as("u-owner", "c-a"))
	want := []string{
		`sprintlens_http_requests_total{method="GET",route="/v1/analytics/productivity",status="200"} 1`,
		`sprintlens_view_duration_seconds_count{view="productivity"} 1`,
	}
	// the request counter is bumped after the response is flushed
	var body string
	for i := 0; i < 50; i++ {
		res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/metrics", nil, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("metrics status %d", res.StatusCode)
		}
		body = string(data)
		if strings.Contains(body, want[0]) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, w := range want {
		if !strings.Contains(body, w) {
			t.Fatalf("expected %q in metrics output", w)
		}
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "/v1/analytics/activity-heatmap") {
		t.Fatalf("heatmap route missing from openapi document")
	}
	if !strings.Contains(string(data), "X-Company-Id") || !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("company header or auth schemes missing from openapi document")
	}
}

func TestWebhookDeliversNewEvents(t *testing.T) {
	srv := newTestServer(t)
	var mu sync.Mutex
	var got []webhookEvent
	var secrets []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Sprintlens-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	d := NewWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{
		{URL: hook.URL, CompanyID: "c-a", Events: []string{"task.created"}, Secret: "s3cret"},
	}, nil)
	ctx := context.Background()
	// the first pass only positions the cursor after the seeded events
	d.DispatchAll(ctx)

	if _, err := srv.Engine.CreateTask(ctx, engine.TaskCreateOptions{ID: "t-new", ProjectID: "p-a1", Title: "New"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := srv.Engine.CreateTask(ctx, engine.TaskCreateOptions{ProjectID: "p-b", Title: "Other tenant"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	d.DispatchAll(ctx)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one delivery, got %d: %+v", len(got), got)
	}
	if got[0].Type != "task.created" || got[0].EntityID != "t-new" || got[0].CompanyID != "c-a" {
		t.Fatalf("unexpected event %+v", got[0])
	}
	if secrets[0] != "s3cret" {
		t.Fatalf("expected secret header, got %q", secrets[0])
	}
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter(nil)
	if !all.match("anything") {
		t.Fatalf("empty filter should match everything")
	}
	f := newEventFilter([]string{" task.created ", ""})
	if !f.match("task.created") || f.match("task.updated") {
		t.Fatalf("unexpected filter behaviour")
	}
}
