package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
)

type fakeStore struct {
	plans     map[string]domain.WorkerPlan
	summaries map[string]domain.HourlySummary
	reports   map[string]domain.DailyReport
}

func planKey(personID, tick int, planType domain.PlanType) string {
	return string(planType) + ":" + string(rune(personID)) + ":" + string(rune(tick))
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:     make(map[string]domain.WorkerPlan),
		summaries: make(map[string]domain.HourlySummary),
		reports:   make(map[string]domain.DailyReport),
	}
}

func (f *fakeStore) GetWorkerPlan(personID, tick int, planType domain.PlanType) (domain.WorkerPlan, bool, error) {
	p, ok := f.plans[planKey(personID, tick, planType)]
	return p, ok, nil
}

func (f *fakeStore) UpsertWorkerPlan(p domain.WorkerPlan) (domain.WorkerPlan, error) {
	f.plans[planKey(p.PersonID, p.Tick, p.PlanType)] = p
	return p, nil
}

func (f *fakeStore) BatchUpsertWorkerPlans(plans []domain.WorkerPlan) error {
	for _, p := range plans {
		f.plans[planKey(p.PersonID, p.Tick, p.PlanType)] = p
	}
	return nil
}

func (f *fakeStore) ListHourlyPlansInRange(personID, fromTick, toTick int) ([]domain.WorkerPlan, error) {
	var out []domain.WorkerPlan
	for _, p := range f.plans {
		if p.PersonID == personID && p.PlanType == domain.PlanTypeHourly && p.Tick >= fromTick && p.Tick <= toTick {
			out = append(out, p)
		}
	}
	return out, nil
}

func summaryKey(personID, hourIndex int) string { return string(rune(personID)) + ":" + string(rune(hourIndex)) }
func reportKey(personID, dayIndex int) string   { return string(rune(personID)) + ":" + string(rune(dayIndex)) }

func (f *fakeStore) UpsertHourlySummary(sum domain.HourlySummary) error {
	f.summaries[summaryKey(sum.PersonID, sum.HourIndex)] = sum
	return nil
}

func (f *fakeStore) GetHourlySummary(personID, hourIndex int) (domain.HourlySummary, bool, error) {
	s, ok := f.summaries[summaryKey(personID, hourIndex)]
	return s, ok, nil
}

func (f *fakeStore) UpsertDailyReport(r domain.DailyReport) error {
	f.reports[reportKey(r.PersonID, r.DayIndex)] = r
	return nil
}

func (f *fakeStore) GetDailyReport(personID, dayIndex int) (domain.DailyReport, bool, error) {
	r, ok := f.reports[reportKey(personID, dayIndex)]
	return r, ok, nil
}

type fakeLLM struct {
	fail  bool
	calls int
}

func (f *fakeLLM) Generate(ctx context.Context, messages []gateway.Message, model string) (string, int, error) {
	f.calls++
	if f.fail {
		return "", 0, errors.New("llm backend unavailable")
	}
	return "generated content", 42, nil
}

func testPerson(id int) Person {
	return Person{ID: id, Name: "Ada", Role: "Engineer", EmailAddress: "ada@example.com", ChatHandle: "ada", MarkdownProfile: "# Ada"}
}

func TestEnsureDailyPlanGeneratesAndCaches(t *testing.T) {
	store := newFakeStore()
	orch := New(store, nil, NewService(&fakeLLM{}, false))

	content, err := orch.EnsureDailyPlan(context.Background(), testPerson(1), 0, "project plan", 2, nil, "gpt")
	if err != nil {
		t.Fatalf("EnsureDailyPlan: %v", err)
	}
	if content != "generated content" {
		t.Errorf("content = %q, want generated content", content)
	}

	// second call should hit the cache (store already has the exact-tick row)
	llm := &fakeLLM{}
	orch2 := New(store, nil, NewService(llm, false))
	content2, err := orch2.EnsureDailyPlan(context.Background(), testPerson(1), 0, "project plan", 2, nil, "gpt")
	if err != nil {
		t.Fatalf("EnsureDailyPlan (cached): %v", err)
	}
	if content2 != content {
		t.Errorf("cached content = %q, want %q", content2, content)
	}
	if llm.calls != 0 {
		t.Errorf("llm called %d times on cache hit, want 0", llm.calls)
	}
}

func TestGenerateHourlyPlanAppendsAdjustments(t *testing.T) {
	store := newFakeStore()
	orch := New(store, nil, NewService(&fakeLLM{}, false))

	result, err := orch.GenerateHourlyPlan(context.Background(), testPerson(1), "proj", "daily", 5, "auto", nil, []string{"Rest and reschedule tasks due to sudden illness."}, nil, "gpt")
	if err != nil {
		t.Fatalf("GenerateHourlyPlan: %v", err)
	}
	if !contains(result.Content, "Live collaboration adjustments") {
		t.Errorf("content missing adjustments header: %q", result.Content)
	}
	if !contains(result.Content, "Rest and reschedule") {
		t.Errorf("content missing adjustment text: %q", result.Content)
	}

	stored, ok, err := store.GetWorkerPlan(1, 5, domain.PlanTypeHourly)
	if err != nil || !ok {
		t.Fatalf("GetWorkerPlan: ok=%v err=%v", ok, err)
	}
	if stored.Content != result.Content {
		t.Error("persisted content does not match returned content")
	}
}

func TestServiceCallFallsBackToStubWhenNotStrict(t *testing.T) {
	svc := NewService(&fakeLLM{fail: true}, false)
	result, err := svc.Call(context.Background(), "generate_daily_plan", nil, "gpt", "day_index=0")
	if err != nil {
		t.Fatalf("Call should fall back, not error: %v", err)
	}
	if result.ModelUsed != "stub" {
		t.Errorf("ModelUsed = %q, want stub", result.ModelUsed)
	}
	metrics := svc.Metrics().Snapshot()
	if len(metrics) != 1 || !metrics[0].Fallback {
		t.Errorf("expected one fallback metrics entry, got %+v", metrics)
	}
}

func TestServiceCallStrictModePropagatesError(t *testing.T) {
	svc := NewService(&fakeLLM{fail: true}, true)
	_, err := svc.Call(context.Background(), "generate_daily_plan", nil, "gpt", "")
	if err == nil {
		t.Fatal("expected error in strict mode, got nil")
	}
}

func TestGenerateHourlyPlansParallelPreservesOrderAndIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	llm := &fakeLLM{}
	orch := New(store, nil, NewService(llm, false))

	tasks := make([]HourlyPlanTask, 5)
	for i := range tasks {
		tasks[i] = HourlyPlanTask{Person: testPerson(i + 1), Tick: i + 1, Reason: "auto", ModelHint: "gpt"}
	}

	results := orch.GenerateHourlyPlansParallel(context.Background(), tasks, 2, 0)
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i, r := range results {
		if r.Person.ID != i+1 {
			t.Errorf("results[%d].Person.ID = %d, want %d (order not preserved)", i, r.Person.ID, i+1)
		}
		if r.Result.Content == "" {
			t.Errorf("results[%d] has empty content", i)
		}
	}
}

func TestGenerateHourlySummarySkipsPersistWhenNoPlans(t *testing.T) {
	store := newFakeStore()
	orch := New(store, nil, NewService(&fakeLLM{}, false))

	sum, err := orch.GenerateHourlySummary(context.Background(), testPerson(1), 0, "gpt")
	if err != nil {
		t.Fatalf("GenerateHourlySummary: %v", err)
	}
	if sum.Content != "" {
		t.Errorf("content = %q, want empty when no hourly plans exist", sum.Content)
	}
	if _, ok, _ := store.GetHourlySummary(1, 0); ok {
		t.Error("empty hourly summary should not be persisted")
	}
}

func TestGenerateHourlySummaryAggregatesPlansInRange(t *testing.T) {
	store := newFakeStore()
	orch := New(store, nil, NewService(&fakeLLM{}, false))

	for _, tick := range []int{1, 30, 60} {
		if _, err := store.UpsertWorkerPlan(domain.WorkerPlan{PersonID: 1, Tick: tick, PlanType: domain.PlanTypeHourly, Content: "did some work"}); err != nil {
			t.Fatalf("seed plan: %v", err)
		}
	}

	sum, err := orch.GenerateHourlySummary(context.Background(), testPerson(1), 0, "gpt")
	if err != nil {
		t.Fatalf("GenerateHourlySummary: %v", err)
	}
	if sum.Content != "generated content" {
		t.Errorf("content = %q, want generated content", sum.Content)
	}
	if _, ok, _ := store.GetHourlySummary(1, 0); !ok {
		t.Error("non-empty hourly summary should be persisted")
	}
}

func TestAttemptLimiterBoundsPerMinuteAttempts(t *testing.T) {
	l := NewAttemptLimiter()
	for i := 0; i < 3; i++ {
		if !l.TryAcquire(1, 0, 0, 3) {
			t.Fatalf("attempt %d should be admitted", i)
		}
	}
	if l.TryAcquire(1, 0, 0, 3) {
		t.Error("4th attempt should be rejected once max is reached")
	}
	// a different persona/tuple has its own independent counter
	if !l.TryAcquire(2, 0, 0, 3) {
		t.Error("different persona should not be blocked by persona 1's counter")
	}
}

func TestAttemptLimiterPruneExcept(t *testing.T) {
	l := NewAttemptLimiter()
	l.TryAcquire(1, 0, 0, 1)
	l.TryAcquire(1, 0, 1, 1)
	l.PruneExcept(0, 1)
	if !l.TryAcquire(1, 0, 0, 1) {
		t.Error("counter for stale (dayIndex, tickOfDay) should have been pruned")
	}
	if l.TryAcquire(1, 0, 1, 1) {
		t.Error("counter for current (dayIndex, tickOfDay) should survive prune")
	}
}

func TestGenerateDailyReportUsesPrecomputedSummaries(t *testing.T) {
	store := newFakeStore()
	orch := New(store, nil, NewService(&fakeLLM{}, false))
	orch.FormatTickOfDay = func(tickOfDay int) string { return time.Duration(tickOfDay).String() }

	if err := store.UpsertHourlySummary(domain.HourlySummary{PersonID: 1, HourIndex: 0, Content: "wrote tests"}); err != nil {
		t.Fatalf("seed summary: %v", err)
	}

	daily := "daily plan text"
	report, err := orch.GenerateDailyReport(context.Background(), testPerson(1), 0, "project plan", &daily, 60, "gpt")
	if err != nil {
		t.Fatalf("GenerateDailyReport: %v", err)
	}
	if report.Content != "generated content" {
		t.Errorf("report content = %q, want generated content", report.Content)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
