package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"designflow/internal/config"
	"designflow/internal/db"
	"designflow/internal/domain"
	"designflow/internal/engine"
	"designflow/internal/events"
	"designflow/internal/migrate"
	"designflow/internal/report"
	"designflow/internal/timeline"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T, tweak ...func(*config.Config)) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("studio")
	for _, fn := range tweak {
		fn(cfg)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return fixedNow }
	if err := e.Seed(ctx, "tester"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return e
}

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
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

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestAssignFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/requests?status=Pending", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	pending := decode[[]domain.DesignRequest](t, data)
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending requests, got %d", len(pending))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/r3/assign", map[string]any{"designer_id": "d3"}, map[string]string{"X-Actor-Id": "manager-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", res.StatusCode, string(data))
	}
	assigned := decode[engine.AssignResult](t, data)
	if assigned.Request.Status != domain.StatusInProgress {
		t.Fatalf("expected In Progress, got %s", assigned.Request.Status)
	}
	if assigned.Designer.AssignedHours != 30 {
		t.Fatalf("expected d3 load 30, got %v", assigned.Designer.AssignedHours)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/r3/assign", map[string]any{"designer_id": "d1"}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on reassign, got %d: %s", res.StatusCode, string(data))
	}
	if env := decode[errorEnvelope](t, data); env.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %q", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type="+events.RequestAssigned, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	page := decode[paginatedEvents](t, data)
	if len(page.Items) != 1 || page.Items[0].ActorID != "manager-1" || page.Items[0].EntityID != "r3" {
		t.Fatalf("unexpected assign events: %+v", page.Items)
	}
}

func TestNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/requests/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if env := decode[errorEnvelope](t, data); env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", env.Error.Code)
	}
}

func TestSubmitValidation(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"title":             "Landing page",
		"type":              "Web Design",
		"business_function": "Marketing",
		"due_date":          "not-a-date",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests", map[string]any{
		"title":             "Landing page",
		"type":              "Web Design",
		"business_function": "Marketing",
		"due_date":          "2026-11-01",
		"estimated_hours":   6,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.StatusCode, string(data))
	}
	created := decode[domain.DesignRequest](t, data)
	if created.Status != domain.StatusPending || created.AssignedTo != nil || created.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected new request: %+v", created)
	}
}

func TestFeedbackTransitions(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/r1/feedback", map[string]any{"type": "Change Request"}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty change request, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/r1/feedback", map[string]any{"type": "Approval"}, map[string]string{"X-Actor-Id": "client-7"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approval status %d: %s", res.StatusCode, string(data))
	}
	req := decode[domain.DesignRequest](t, data)
	if req.Status != domain.StatusCompleted {
		t.Fatalf("expected Completed, got %s", req.Status)
	}
	last := req.Feedback[len(req.Feedback)-1]
	if last.Content != "Design Approved." || last.Author != "client-7" || last.Role != domain.RoleClient {
		t.Fatalf("unexpected feedback entry: %+v", last)
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/requests/r1/status", map[string]any{"status": "Archived"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/requests/r1/status", map[string]any{"status": "Review"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set status %d: %s", res.StatusCode, string(data))
	}
	if got := decode[domain.DesignRequest](t, data); got.Status != domain.StatusReview {
		t.Fatalf("expected Review, got %s", got.Status)
	}
}

func TestSuggestionsWithoutOracle(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/suggestions", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("suggestions status %d: %s", res.StatusCode, string(data))
	}
	if got := decode[SuggestionsResponse](t, data); len(got.Items) != 0 {
		t.Fatalf("expected no suggestions, got %+v", got.Items)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/suggestions/apply", map[string]any{"request_id": "r1", "designer_id": "d3"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("apply status %d: %s", res.StatusCode, string(data))
	}
	if got := decode[engine.ApplyResult](t, data); got.Applied {
		t.Fatalf("stale suggestion applied: %+v", got)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/reports/insights", map[string]any{}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("insights status %d: %s", res.StatusCode, string(data))
	}
	if got := decode[InsightsResponse](t, data); got.Text != engine.InsightsNoKey || got.Period != "month" {
		t.Fatalf("unexpected insights: %+v", got)
	}
}

func TestViews(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/timeline?days=7", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
	layout := decode[timeline.Layout](t, data)
	if len(layout.Rows) != 4 {
		t.Fatalf("expected a row per designer, got %d", len(layout.Rows))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/timeline?start=10/11/2026", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/dashboard", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dashboard status %d: %s", res.StatusCode, string(data))
	}
	dash := decode[report.Dashboard](t, data)
	if len(dash.Recent) == 0 || dash.Recent[0].ID != "r6" {
		t.Fatalf("expected newest request first, got %+v", dash.Recent)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status %d: %s", res.StatusCode, string(data))
	}
}

func TestShifts(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/shifts", map[string]any{"designer_id": "d2", "date": "2026-10-30", "type": "Full"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("schedule status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/shifts?designer_id=d2", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var found bool
	for _, s := range decode[[]domain.Shift](t, data) {
		if s.Date == "2026-10-30" && s.Type == domain.ShiftFull {
			found = true
		}
	}
	if !found {
		t.Fatalf("scheduled shift missing: %s", string(data))
	}
}

func TestJWTAuth(t *testing.T) {
	secret := "s3cret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/requests", nil, map[string]string{"X-Actor-Id": "spoofed"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should bypass auth, got %d", res.StatusCode)
	}

	bad, err := IssueToken("other", "u1", "", "", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/requests", nil, map[string]string{"Authorization": "Bearer " + bad})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong signature, got %d", res.StatusCode)
	}

	token, err := IssueToken(secret, "u-42", "Dana", domain.RoleManager, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/requests/r2/feedback", map[string]any{"type": "General", "content": "Looks good so far"}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("feedback status %d: %s", res.StatusCode, string(data))
	}
	req := decode[domain.DesignRequest](t, data)
	last := req.Feedback[len(req.Feedback)-1]
	if last.Author != "Dana" || last.Role != domain.RoleManager {
		t.Fatalf("expected author from token, got %+v", last)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	if me := decode[map[string]string](t, data); me["actor_id"] != "u-42" || me["source"] != "jwt" {
		t.Fatalf("unexpected principal: %v", me)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "x"})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	doc := decode[map[string]any](t, data)
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/v0/requests", "/v0/requests/{request_id}/assign", "/v0/timeline", "/v0/suggestions/apply"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}
}

func TestWebhookDispatch(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var secrets []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, evt)
		secrets = append(secrets, r.Header.Get("X-Designflow-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	e := newTestEngine(t, func(cfg *config.Config) {
		cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"request.*"}, Secret: "abc"}}
	})
	ctx := context.Background()
	d := newWebhookDispatcher(e, nil)
	if d == nil {
		t.Fatalf("expected dispatcher")
	}
	// the first pass pins the cursor so seed events are not replayed
	d.dispatchAll(ctx)
	if len(got) != 0 {
		t.Fatalf("expected no deliveries for history, got %d", len(got))
	}

	if _, err := e.Assign(ctx, "r5", "d4", "tester"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := e.ScheduleShift(ctx, "d4", "2026-10-20", domain.ShiftOff, "tester"); err != nil {
		t.Fatalf("shift: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %+v", got)
	}
	if got[0].Type != events.RequestAssigned || got[0].EntityID != "r5" || got[0].Team != "studio" {
		t.Fatalf("unexpected delivery: %+v", got[0])
	}
	if secrets[0] != "abc" {
		t.Fatalf("secret header missing")
	}
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"request.*", "designer.created"})
	cases := map[string]bool{
		"request.assigned":  true,
		"request.released":  true,
		"designer.created":  true,
		"shift.scheduled":   false,
		"feedback.recorded": false,
	}
	for evt, want := range cases {
		if f.match(evt) != want {
			t.Fatalf("match(%s) = %v, want %v", evt, !want, want)
		}
	}
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match everything")
	}
}
