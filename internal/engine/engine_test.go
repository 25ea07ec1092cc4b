package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"designflow/internal/config"
	"designflow/internal/db"
	"designflow/internal/domain"
	"designflow/internal/engine"
	"designflow/internal/lifecycle"
	"designflow/internal/migrate"
	"designflow/internal/oracle"
	"designflow/internal/repo"
	"designflow/internal/report"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T, tweak ...func(*config.Config)) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test")
	for _, fn := range tweak {
		fn(cfg)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return fixedNow }
	if err := eng.Seed(ctx, "tester"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func flatIncrement(cfg *config.Config) {
	cfg.Policies.Capacity.Increment = "flat"
	cfg.Policies.Capacity.FlatHours = 5
}

func (env testEnv) designer(t *testing.T, id string) domain.Designer {
	t.Helper()
	d, err := env.Engine.Repo.GetDesigner(env.Ctx, id)
	if err != nil {
		t.Fatalf("get designer %s: %v", id, err)
	}
	return d
}

func (env testEnv) request(t *testing.T, id string) domain.DesignRequest {
	t.Helper()
	r, err := env.Engine.Repo.GetRequest(env.Ctx, id)
	if err != nil {
		t.Fatalf("get request %s: %v", id, err)
	}
	return r
}

func (env testEnv) eventCount(t *testing.T, evtType, entityID string) int {
	t.Helper()
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 100, repo.EventFilter{Type: evtType, EntityID: entityID})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return len(evts)
}

func TestAssignChargesCapacity(t *testing.T) {
	env := newTestEnv(t, flatIncrement)
	res, err := env.Engine.Assign(env.Ctx, "r5", "d1", "manager")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Designer.AssignedHours != 30 {
		t.Fatalf("expected d1 at 30h, got %v", res.Designer.AssignedHours)
	}
	r5 := env.request(t, "r5")
	if r5.Status != domain.StatusInProgress {
		t.Fatalf("expected In Progress, got %s", r5.Status)
	}
	if r5.AssignedTo == nil || *r5.AssignedTo != "d1" {
		t.Fatalf("expected owner d1, got %v", r5.AssignedTo)
	}
	if r5.StartDate == nil || *r5.StartDate != "2026-10-15" {
		t.Fatalf("expected start date today, got %v", r5.StartDate)
	}
	if got := env.designer(t, "d1").AssignedHours; got != 30 {
		t.Fatalf("persisted load %v", got)
	}
	if n := env.eventCount(t, "request.assigned", "r5"); n != 1 {
		t.Fatalf("expected one assigned event, got %d", n)
	}
}

func TestAssignUsesEstimateByDefault(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Assign(env.Ctx, "r5", "d1", "manager")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if res.Hours != 8 || res.Designer.AssignedHours != 33 {
		t.Fatalf("expected +8h to 33h, got +%v to %v", res.Hours, res.Designer.AssignedHours)
	}
}

func TestAssignRejectsAlreadyAssigned(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Assign(env.Ctx, "r1", "d3", "manager")
	if !errors.Is(err, lifecycle.ErrAlreadyAssigned) || !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected already-assigned transition error, got %v", err)
	}
	if got := env.designer(t, "d3").AssignedHours; got != 10 {
		t.Fatalf("d3 load changed to %v", got)
	}
	if r1 := env.request(t, "r1"); *r1.AssignedTo != "d1" {
		t.Fatalf("owner changed to %s", *r1.AssignedTo)
	}
}

func TestAssignMovePolicyReleasesPreviousOwner(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Policies.Assignment.Reassign = "move" })
	res, err := env.Engine.Assign(env.Ctx, "r1", "d3", "manager")
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if res.Designer.AssignedHours != 22 {
		t.Fatalf("expected d3 at 22h, got %v", res.Designer.AssignedHours)
	}
	if got := env.designer(t, "d1").AssignedHours; got != 13 {
		t.Fatalf("expected d1 released to 13h, got %v", got)
	}
	if n := env.eventCount(t, "request.released", "r1"); n != 1 {
		t.Fatalf("expected release event, got %d", n)
	}
}

func TestAssignNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Assign(env.Ctx, "r404", "d1", "m"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for request, got %v", err)
	}
	if _, err := env.Engine.Assign(env.Ctx, "r5", "d404", "m"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for designer, got %v", err)
	}
	if r5 := env.request(t, "r5"); r5.Status != domain.StatusPending || r5.Assigned() {
		t.Fatalf("r5 mutated: %+v", r5)
	}
}

func TestApplyStaleSuggestionIsDiscarded(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Assign(env.Ctx, "r3", "d3", "manager"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	res, err := env.Engine.ApplySuggestion(env.Ctx, domain.Suggestion{RequestID: "r3", DesignerID: "d2", Rationale: "print skills"}, "manager")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied || res.Reason == "" {
		t.Fatalf("expected discard with reason, got %+v", res)
	}
	if got := env.designer(t, "d2").AssignedHours; got != 38 {
		t.Fatalf("d2 load changed to %v", got)
	}
	if r3 := env.request(t, "r3"); *r3.AssignedTo != "d3" {
		t.Fatalf("r3 owner changed to %s", *r3.AssignedTo)
	}
	if n := env.eventCount(t, "suggestion.discarded", "r3"); n != 1 {
		t.Fatalf("expected discard event, got %d", n)
	}
}

func TestApplySuggestionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := domain.Suggestion{RequestID: "r6", DesignerID: "d4", Rationale: "has room"}
	first, err := env.Engine.ApplySuggestion(env.Ctx, s, "manager")
	if err != nil || !first.Applied {
		t.Fatalf("first apply: %+v %v", first, err)
	}
	second, err := env.Engine.ApplySuggestion(env.Ctx, s, "manager")
	if err != nil || second.Applied {
		t.Fatalf("second apply should be discarded: %+v %v", second, err)
	}
	if got := env.designer(t, "d4").AssignedHours; got != 34 {
		t.Fatalf("expected d4 charged once to 34h, got %v", got)
	}
}

func TestApplySuggestionUnknownParties(t *testing.T) {
	env := newTestEnv(t)
	for _, s := range []domain.Suggestion{
		{RequestID: "r404", DesignerID: "d1", Rationale: "x"},
		{RequestID: "r5", DesignerID: "d404", Rationale: "x"},
	} {
		res, err := env.Engine.ApplySuggestion(env.Ctx, s, "manager")
		if err != nil || res.Applied {
			t.Fatalf("expected discard for %+v, got %+v %v", s, res, err)
		}
	}
	if r5 := env.request(t, "r5"); r5.Assigned() {
		t.Fatalf("r5 assigned")
	}
}

func TestRequestSuggestionsSwallowsOracleErrors(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Oracle = oracle.Funcs{Suggest: func(context.Context, []oracle.DesignerInput, []oracle.RequestInput) ([]domain.Suggestion, error) {
		return nil, errors.New("timeout")
	}}
	got, err := env.Engine.RequestSuggestions(env.Ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestRequestSuggestionsDropsUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	var seenRequests []string
	env.Engine.Oracle = oracle.Funcs{Suggest: func(_ context.Context, ds []oracle.DesignerInput, rs []oracle.RequestInput) ([]domain.Suggestion, error) {
		for _, r := range rs {
			seenRequests = append(seenRequests, r.ID)
		}
		return []domain.Suggestion{
			{RequestID: "r5", DesignerID: "d1", Rationale: "web"},
			{RequestID: "r1", DesignerID: "d1", Rationale: "not pending"},
			{RequestID: "r6", DesignerID: "d99", Rationale: "ghost"},
		}, nil
	}}
	got, err := env.Engine.RequestSuggestions(env.Ctx)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if len(seenRequests) != 3 {
		t.Fatalf("oracle should see the three pending requests, saw %v", seenRequests)
	}
	if len(got) != 1 || got[0].RequestID != "r5" {
		t.Fatalf("expected only r5 suggestion, got %+v", got)
	}
}

func TestApprovalCompletesWithDefaultMessage(t *testing.T) {
	env := newTestEnv(t)
	r2, err := env.Engine.RecordFeedback(env.Ctx, engine.FeedbackOptions{RequestID: "r2", Type: domain.FeedbackApproval, ActorID: "client-1"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if r2.Status != domain.StatusCompleted {
		t.Fatalf("expected Completed, got %s", r2.Status)
	}
	stored := env.request(t, "r2")
	if len(stored.Feedback) != 1 || stored.Feedback[0].Content != "Design Approved." {
		t.Fatalf("unexpected feedback: %+v", stored.Feedback)
	}
	if stored.Feedback[0].Author != "client-1" || stored.Feedback[0].Role != domain.RoleClient {
		t.Fatalf("author/role defaults not applied: %+v", stored.Feedback[0])
	}
}

func TestChangeRequestRequiresContent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RecordFeedback(env.Ctx, engine.FeedbackOptions{RequestID: "r2", Type: domain.FeedbackChangeRequest, Content: "   "})
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	r2 := env.request(t, "r2")
	if len(r2.Feedback) != 0 || r2.Status != domain.StatusInProgress {
		t.Fatalf("r2 mutated: %+v", r2)
	}
}

func TestFeedbackThreadKeepsOrder(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RecordFeedback(env.Ctx, engine.FeedbackOptions{RequestID: "r1", Type: domain.FeedbackGeneral, Content: "third", Role: domain.RoleManager}); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	r1 := env.request(t, "r1")
	if len(r1.Feedback) != 3 || r1.Feedback[0].ID != "f1" || r1.Feedback[2].Content != "third" {
		t.Fatalf("unexpected thread: %+v", r1.Feedback)
	}
	if r1.Status != domain.StatusInProgress {
		t.Fatalf("general feedback changed status to %s", r1.Status)
	}
}

func TestChangeRequestReopensCompleted(t *testing.T) {
	env := newTestEnv(t)
	r4, err := env.Engine.RecordFeedback(env.Ctx, engine.FeedbackOptions{RequestID: "r4", Type: domain.FeedbackChangeRequest, Content: "one more slide"})
	if err != nil {
		t.Fatalf("change request: %v", err)
	}
	if r4.Status != domain.StatusInProgress {
		t.Fatalf("expected reopen to In Progress, got %s", r4.Status)
	}
}

func TestChangeRequestLockedWhenReopenDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Policies.Lifecycle.ReopenCompleted = false })
	_, err := env.Engine.RecordFeedback(env.Ctx, engine.FeedbackOptions{RequestID: "r4", Type: domain.FeedbackChangeRequest, Content: "one more slide"})
	if !errors.Is(err, lifecycle.ErrCompletedLocked) {
		t.Fatalf("expected completed lock, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	env := newTestEnv(t)
	r1, err := env.Engine.SetStatus(env.Ctx, "r1", domain.StatusBlocked, "manager")
	if err != nil || r1.Status != domain.StatusBlocked {
		t.Fatalf("block: %v %s", err, r1.Status)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, "r1", domain.StatusPending, "manager"); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected pending-with-owner rejection, got %v", err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, "r1", "Archived", "manager"); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected unknown status rejection, got %v", err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, "r404", domain.StatusReview, "manager"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitRequestForcesPending(t *testing.T) {
	env := newTestEnv(t)
	req, err := env.Engine.SubmitRequest(env.Ctx, engine.RequestDraft{
		Title: "Trade show booth", Type: "Print", BusinessFunction: "Sales", DueDate: "2026-11-01", EstimatedHours: 16, ActorID: "client-2",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if req.ID == "" || req.Status != domain.StatusPending || req.Assigned() || req.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected request: %+v", req)
	}
	if _, err := env.Engine.SubmitRequest(env.Ctx, engine.RequestDraft{Title: "x", Type: "Print", BusinessFunction: "Sales", DueDate: "next week"}); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := env.Engine.SubmitRequest(env.Ctx, engine.RequestDraft{Title: "x", Type: "Print", BusinessFunction: "Sales", DueDate: "2026-11-01", Priority: "Someday"}); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected invalid priority, got %v", err)
	}
}

func TestCreateDesigner(t *testing.T) {
	env := newTestEnv(t)
	d, err := env.Engine.CreateDesigner(env.Ctx, engine.DesignerCreateOptions{Name: "Eve", CapacityHours: 20, Skills: []string{"Web", " Web ", ""}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(d.Skills) != 1 || d.AssignedHours != 0 {
		t.Fatalf("unexpected designer: %+v", d)
	}
	if _, err := env.Engine.CreateDesigner(env.Ctx, engine.DesignerCreateOptions{Name: "Zero"}); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
}

func TestTimelineDefaultsToWeekStart(t *testing.T) {
	env := newTestEnv(t)
	layout, err := env.Engine.Timeline(env.Ctx, engine.TimelineOptions{})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if layout.Start != "2026-10-11" || layout.Days != 14 || len(layout.Rows) != 4 {
		t.Fatalf("unexpected window: %s %d rows=%d", layout.Start, layout.Days, len(layout.Rows))
	}
	d1 := layout.Rows[0]
	if len(d1.Bars) != 2 {
		t.Fatalf("expected two bars for d1, got %+v", d1.Bars)
	}
	// r1 runs 10-14..10-20, r4 10-10..10-13 clipped at the window start
	if d1.Bars[0].OffsetDays != 3 || d1.Bars[0].DurationDays != 7 {
		t.Fatalf("r1 bar: %+v", d1.Bars[0])
	}
	if d1.Bars[1].OffsetDays != 0 || d1.Bars[1].DurationDays != 3 {
		t.Fatalf("r4 bar: %+v", d1.Bars[1])
	}
	if len(layout.Rows[2].Bars) != 0 {
		t.Fatalf("d3 has no started work: %+v", layout.Rows[2].Bars)
	}
}

func TestTimelineRejectsBadStart(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Timeline(env.Ctx, engine.TimelineOptions{Start: "10/11/2026"}); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReportAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	stats, err := env.Engine.Report(env.Ctx)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if stats.TotalRequests != 6 || len(stats.TypeData) != 6 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.FunctionData[0] != (report.CategoryCount{Name: "Marketing", Value: 2}) {
		t.Fatalf("unexpected function data: %+v", stats.FunctionData)
	}
	dash, err := env.Engine.Dashboard(env.Ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.TotalRequests != 6 || dash.Pending != 3 || dash.InProgress != 2 || dash.DesignersActive != 4 {
		t.Fatalf("unexpected counters: %+v", dash)
	}
	if len(dash.Recent) != 5 || dash.Recent[0].ID != "r6" {
		t.Fatalf("expected newest first: %+v", dash.Recent)
	}
}

func TestInsightsFallbacks(t *testing.T) {
	env := newTestEnv(t)
	text, err := env.Engine.Insights(env.Ctx, "month")
	if err != nil || text != engine.InsightsNoKey {
		t.Fatalf("disabled oracle: %q %v", text, err)
	}
	env.Engine.Oracle = oracle.Funcs{Summary: func(context.Context, report.Stats, string) (string, error) {
		return "", errors.New("overloaded")
	}}
	text, err = env.Engine.Insights(env.Ctx, "month")
	if err != nil || text != engine.InsightsFailed {
		t.Fatalf("failing oracle: %q %v", text, err)
	}
	var gotPeriod string
	env.Engine.Oracle = oracle.Funcs{Summary: func(_ context.Context, s report.Stats, period string) (string, error) {
		gotPeriod = period
		return "Web work dominates.", nil
	}}
	text, err = env.Engine.Insights(env.Ctx, "")
	if err != nil || text != "Web work dominates." || gotPeriod != "month" {
		t.Fatalf("working oracle: %q %q %v", text, gotPeriod, err)
	}
}

func TestSeedRefusesPopulatedWorkspace(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Seed(env.Ctx, "tester"); !errors.Is(err, engine.ErrInvalidInput) {
		t.Fatalf("expected refusal, got %v", err)
	}
	shifts, err := env.Engine.Repo.ListShifts(env.Ctx, "d1")
	if err != nil {
		t.Fatalf("shifts: %v", err)
	}
	if len(shifts) != 7 || shifts[0].Type != domain.ShiftMorning || shifts[6].Type != domain.ShiftOff {
		t.Fatalf("unexpected roster: %+v", shifts)
	}
}

func TestScheduleShift(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.ScheduleShift(env.Ctx, "d1", "2026-10-15", domain.ShiftEvening, "manager")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if s.ID != "d1-2026-10-15" {
		t.Fatalf("unexpected id %s", s.ID)
	}
	shifts, _ := env.Engine.Repo.ListShifts(env.Ctx, "d1")
	if shifts[0].Type != domain.ShiftEvening {
		t.Fatalf("shift not replaced: %+v", shifts[0])
	}
	if _, err := env.Engine.ScheduleShift(env.Ctx, "d404", "2026-10-15", domain.ShiftFull, "m"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInvariantsHoldAfterOperations(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.Engine.Assign(env.Ctx, "r5", "d1", "m")
	_, _ = env.Engine.RecordFeedback(env.Ctx, engine.FeedbackOptions{RequestID: "r3", Type: domain.FeedbackChangeRequest, Content: "faster"})
	_, _ = env.Engine.SetStatus(env.Ctx, "r6", domain.StatusBlocked, "m")
	reqs, err := env.Engine.Repo.ListRequests(env.Ctx, repo.RequestFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range reqs {
		if err := lifecycle.CheckInvariants(r); err != nil {
			t.Fatal(err)
		}
	}
}
