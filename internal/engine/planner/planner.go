// Package planner is the Planning Orchestrator (C6): three-level plan
// generation (project/daily/hourly) with per-(persona, tick) idempotence,
// bounded parallelism via a worker pool, and hourly-summary/daily-report
// aggregation. Grounded directly on
// original_source/.../planning_orchestrator.py, with the "VirtualWorker vs
// PlannerService" branch collapsed into a single LLM-gateway call path
// (this domain has no specialized per-persona worker implementations) and
// the thread-pool-with-timeout pattern replaced by
// golang.org/x/sync/errgroup, grounded on its use in
// theRebelliousNerd-codenerd/internal/campaign/intelligence_gatherer.go.
package planner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
)

// PlanResult is the output of every plan/report generation call, per
// spec.md §4.6.
type PlanResult struct {
	Content    string
	ModelUsed  string
	TokensUsed int
}

// Store is the subset of the Plan/Report Stores the orchestrator needs.
type Store interface {
	GetWorkerPlan(personID, tick int, planType domain.PlanType) (domain.WorkerPlan, bool, error)
	UpsertWorkerPlan(p domain.WorkerPlan) (domain.WorkerPlan, error)
	BatchUpsertWorkerPlans(plans []domain.WorkerPlan) error
	ListHourlyPlansInRange(personID, fromTick, toTick int) ([]domain.WorkerPlan, error)
	UpsertHourlySummary(sum domain.HourlySummary) error
	GetHourlySummary(personID, hourIndex int) (domain.HourlySummary, bool, error)
	UpsertDailyReport(r domain.DailyReport) error
	GetDailyReport(personID, dayIndex int) (domain.DailyReport, bool, error)
}

// RecentEmailProvider supplies the sender's recent-email ring, maintained by
// the Communication Hub, for reply-threading context in hourly planning.
type RecentEmailProvider interface {
	RecentEmailsForPerson(personID, limit int) []domain.RecentEmail
}

// Person is the minimal persona projection the orchestrator needs.
type Person struct {
	ID              int
	Name            string
	Role            string
	EmailAddress    string
	ChatHandle      string
	MarkdownProfile string
	Schedule        []domain.ScheduleBlock
}

// Orchestrator is the Planning Orchestrator.
type Orchestrator struct {
	store    Store
	recent   RecentEmailProvider
	service  *Service
	attempts *AttemptLimiter
	// FormatTickOfDay renders a tick-of-day as "HH:MM" text for the minute
	// schedule outline; supplied by the Engine Coordinator, which owns the
	// Tick Manager.
	FormatTickOfDay func(tickOfDay int) string
}

// New creates a Planning Orchestrator.
func New(store Store, recent RecentEmailProvider, service *Service) *Orchestrator {
	return &Orchestrator{
		store: store, recent: recent, service: service, attempts: NewAttemptLimiter(),
		FormatTickOfDay: func(tickOfDay int) string { return fmt.Sprintf("tick %d", tickOfDay) },
	}
}

// Attempts returns the per-minute plan-attempt limiter, shared across
// concurrently running planning tasks.
func (o *Orchestrator) Attempts() *AttemptLimiter { return o.attempts }

// Service exposes the underlying planner Service, e.g. for metrics
// inspection or clearing on reset.
func (o *Orchestrator) Service() *Service { return o.service }

// EnsureDailyPlan returns the cached daily plan content for an exact-tick
// match, or generates and persists one, per spec.md §4.6.
func (o *Orchestrator) EnsureDailyPlan(ctx context.Context, person Person, dayIndex int, projectPlanText string, durationWeeks int, team []Person, modelHint string) (string, error) {
	existing, ok, err := o.store.GetWorkerPlan(person.ID, dayIndex, domain.PlanTypeDaily)
	if err != nil {
		return "", fmt.Errorf("planner: ensure daily plan lookup: %w", err)
	}
	if ok {
		return existing.Content, nil
	}
	result, err := o.GenerateDailyPlan(ctx, person, projectPlanText, dayIndex, durationWeeks, team, modelHint)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// GenerateProjectPlan generates a project plan. Unlike the daily/hourly
// generators it does not persist: project plans live in the Project Manager
// (C4), which the Engine Coordinator calls to store the result alongside its
// team assignments.
func (o *Orchestrator) GenerateProjectPlan(ctx context.Context, departmentHead Person, projectName, projectSummary string, durationWeeks int, team []Person, modelHint string) (PlanResult, error) {
	messages := buildProjectPlanMessages(departmentHead, projectName, projectSummary, durationWeeks, team)
	result, err := o.service.Call(ctx, "generate_project_plan", messages, modelHint, fmt.Sprintf("project=%s", projectName))
	if err != nil {
		return PlanResult{}, fmt.Errorf("planner: generate project plan for %s: %w", projectName, err)
	}
	return result, nil
}

// GenerateDailyPlan generates and persists a daily plan.
func (o *Orchestrator) GenerateDailyPlan(ctx context.Context, person Person, projectPlanText string, dayIndex, durationWeeks int, team []Person, modelHint string) (PlanResult, error) {
	messages := buildDailyPlanMessages(person, projectPlanText, dayIndex, durationWeeks, team)
	result, err := o.service.Call(ctx, "generate_daily_plan", messages, modelHint, fmt.Sprintf("day_index=%d", dayIndex))
	if err != nil {
		return PlanResult{}, fmt.Errorf("planner: generate daily plan for %s: %w", person.Name, err)
	}
	if _, err := o.store.UpsertWorkerPlan(domain.WorkerPlan{
		PersonID: person.ID, Tick: dayIndex, PlanType: domain.PlanTypeDaily,
		Content: result.Content, ModelUsed: result.ModelUsed, TokensUsed: result.TokensUsed,
		Context: fmt.Sprintf("day_index=%d", dayIndex),
	}); err != nil {
		return PlanResult{}, fmt.Errorf("planner: persist daily plan for %s: %w", person.Name, err)
	}
	return result, nil
}

// GenerateHourlyPlan generates, adjusts, and persists one hourly plan, per
// spec.md §4.6.
func (o *Orchestrator) GenerateHourlyPlan(ctx context.Context, person Person, projectPlanText, dailyPlanText string, tick int, reason string, team []Person, adjustments []string, allActiveProjects []string, modelHint string) (PlanResult, error) {
	var recent []domain.RecentEmail
	if o.recent != nil {
		recent = o.recent.RecentEmailsForPerson(person.ID, 10)
	}
	messages := buildHourlyPlanMessages(person, projectPlanText, dailyPlanText, tick, reason, team, recent, allActiveProjects)

	contextStr := fmt.Sprintf("reason=%s", reason)
	if len(adjustments) > 0 {
		contextStr += fmt.Sprintf(";adjustments=%d", len(adjustments))
	}

	result, err := o.service.Call(ctx, "generate_hourly_plan", messages, modelHint, contextStr)
	if err != nil {
		return PlanResult{}, fmt.Errorf("planner: generate hourly plan for %s: %w", person.Name, err)
	}

	if len(adjustments) > 0 {
		var b strings.Builder
		b.WriteString(result.Content)
		b.WriteString("\n\nLive collaboration adjustments:\n")
		for _, a := range adjustments {
			b.WriteString("- ")
			b.WriteString(a)
			b.WriteString("\n")
		}
		result.Content = strings.TrimRight(b.String(), "\n")
	}

	if _, err := o.store.UpsertWorkerPlan(domain.WorkerPlan{
		PersonID: person.ID, Tick: tick, PlanType: domain.PlanTypeHourly,
		Content: result.Content, ModelUsed: result.ModelUsed, TokensUsed: result.TokensUsed,
		Context: contextStr,
	}); err != nil {
		return PlanResult{}, fmt.Errorf("planner: persist hourly plan for %s: %w", person.Name, err)
	}
	return result, nil
}

// HourlyPlanTask is one unit of work for GenerateHourlyPlansParallel.
type HourlyPlanTask struct {
	Person            Person
	ProjectPlanText   string
	DailyPlanText     string
	Tick              int
	Reason            string
	Team              []Person
	Adjustments       []string
	AllActiveProjects []string
	ModelHint         string
}

// PersonPlanResult pairs a task's person with its generated result.
type PersonPlanResult struct {
	Person Person
	Result PlanResult
}

// GenerateHourlyPlansParallel runs tasks through a bounded worker pool
// (errgroup.SetLimit(maxWorkers)), preserving input order in the returned
// slice. A single task's failure yields an empty PlanResult for that task
// only and does not fail the others, per spec.md §4.6 and §5.
func (o *Orchestrator) GenerateHourlyPlansParallel(ctx context.Context, tasks []HourlyPlanTask, maxWorkers int, taskTimeout time.Duration) []PersonPlanResult {
	out := make([]PersonPlanResult, len(tasks))
	if len(tasks) == 0 {
		return out
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			taskCtx := gctx
			var cancel context.CancelFunc
			if taskTimeout > 0 {
				taskCtx, cancel = context.WithTimeout(gctx, taskTimeout)
				defer cancel()
			}
			result, err := o.GenerateHourlyPlan(taskCtx, task.Person, task.ProjectPlanText, task.DailyPlanText, task.Tick, task.Reason, task.Team, task.Adjustments, task.AllActiveProjects, task.ModelHint)
			if err != nil {
				result = PlanResult{Content: "", ModelUsed: "error", TokensUsed: 0}
			}
			out[i] = PersonPlanResult{Person: task.Person, Result: result}
			return nil // never propagate: failures are per-task, not pool-wide
		})
	}
	_ = g.Wait()
	return out
}

// GenerateHourlySummary concatenates a persona's hourly plans within the
// hour's tick range [hourIndex*60+1, (hourIndex+1)*60] and summarizes them,
// upserting one row per (person, hour). When no hourly plans exist for the
// window, an unpersisted empty summary is returned (matching the original
// source's cache-miss-without-write behavior).
func (o *Orchestrator) GenerateHourlySummary(ctx context.Context, person Person, hourIndex int, modelHint string) (domain.HourlySummary, error) {
	existing, ok, err := o.store.GetHourlySummary(person.ID, hourIndex)
	if err != nil {
		return domain.HourlySummary{}, fmt.Errorf("planner: get hourly summary: %w", err)
	}
	if ok {
		return existing, nil
	}

	startTick := hourIndex*60 + 1
	endTick := (hourIndex + 1) * 60
	rows, err := o.store.ListHourlyPlansInRange(person.ID, startTick, endTick)
	if err != nil {
		return domain.HourlySummary{}, fmt.Errorf("planner: list hourly plans in range: %w", err)
	}
	if len(rows) == 0 {
		return domain.HourlySummary{PersonID: person.ID, HourIndex: hourIndex, Content: ""}, nil
	}

	var b strings.Builder
	for _, row := range rows {
		content := row.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Fprintf(&b, "Tick %d: %s\n", row.Tick, content)
	}

	result, err := o.service.Call(ctx, "generate_hourly_summary", []gateway.Message{
		{Role: "user", Content: b.String()},
	}, modelHint, fmt.Sprintf("hour_index=%d", hourIndex))
	if err != nil {
		result = PlanResult{Content: fmt.Sprintf("Hour %d activities", hourIndex+1), ModelUsed: "stub", TokensUsed: 0}
	}

	if err := o.store.UpsertHourlySummary(domain.HourlySummary{PersonID: person.ID, HourIndex: hourIndex, Content: result.Content}); err != nil {
		return domain.HourlySummary{}, fmt.Errorf("planner: persist hourly summary: %w", err)
	}
	stored, _, err := o.store.GetHourlySummary(person.ID, hourIndex)
	if err != nil {
		return domain.HourlySummary{}, fmt.Errorf("planner: reload hourly summary: %w", err)
	}
	return stored, nil
}

// GenerateDailyReport builds the daily report for a persona, falling back
// to on-demand hourly-summary generation and rendering a minute-level
// schedule outline, per spec.md §4.6.
func (o *Orchestrator) GenerateDailyReport(ctx context.Context, person Person, dayIndex int, projectPlanText string, dailyPlanText *string, hoursPerDay int, modelHint string) (domain.DailyReport, error) {
	existing, ok, err := o.store.GetDailyReport(person.ID, dayIndex)
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("planner: get daily report: %w", err)
	}
	if ok {
		return existing, nil
	}

	var dailyText string
	if dailyPlanText != nil {
		dailyText = *dailyPlanText
	} else if daily, ok, err := o.store.GetWorkerPlan(person.ID, dayIndex, domain.PlanTypeDaily); err == nil && ok {
		dailyText = daily.Content
	}

	hoursPerDayCount := hoursPerDay / 60
	startHour := dayIndex * hoursPerDayCount
	endHour := (dayIndex + 1) * hoursPerDayCount

	var lines []string
	for h := startHour; h < endHour; h++ {
		if sum, ok, err := o.store.GetHourlySummary(person.ID, h); err == nil && ok && sum.Content != "" {
			lines = append(lines, fmt.Sprintf("Hour %d: %s", h+1, sum.Content))
		}
	}
	if len(lines) == 0 {
		for h := startHour; h < endHour; h++ {
			sum, err := o.GenerateHourlySummary(ctx, person, h, modelHint)
			if err != nil {
				return domain.DailyReport{}, err
			}
			if sum.Content != "" {
				lines = append(lines, fmt.Sprintf("Hour %d: %s", h+1, sum.Content))
			}
		}
	}
	hourlySummary := "No hourly activity recorded."
	if len(lines) > 0 {
		hourlySummary = strings.Join(lines, "\n")
	}

	minuteSchedule := o.renderMinuteSchedule(person.Schedule)

	messages := buildDailyReportMessages(person, projectPlanText, dayIndex, dailyText, hourlySummary, minuteSchedule)
	result, err := o.service.Call(ctx, "generate_daily_report", messages, modelHint, fmt.Sprintf("day_index=%d", dayIndex))
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("planner: generate daily report for %s: %w", person.Name, err)
	}

	if err := o.store.UpsertDailyReport(domain.DailyReport{PersonID: person.ID, DayIndex: dayIndex, Content: result.Content}); err != nil {
		return domain.DailyReport{}, fmt.Errorf("planner: persist daily report: %w", err)
	}
	stored, _, err := o.store.GetDailyReport(person.ID, dayIndex)
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("planner: reload daily report: %w", err)
	}
	return stored, nil
}

func (o *Orchestrator) renderMinuteSchedule(blocks []domain.ScheduleBlock) string {
	if len(blocks) == 0 {
		return "No schedule blocks recorded."
	}
	var b strings.Builder
	for _, blk := range blocks {
		fmt.Fprintf(&b, "%s-%s %s\n", o.FormatTickOfDay(blk.StartTick), o.FormatTickOfDay(blk.EndTick), blk.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}

// --- message construction -------------------------------------------------

func buildRoster(team []Person) string {
	var b strings.Builder
	for _, p := range team {
		fmt.Fprintf(&b, "- %s (%s): %s, @%s\n", p.Name, p.Role, p.EmailAddress, p.ChatHandle)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildProjectPlanMessages(departmentHead Person, projectName, projectSummary string, durationWeeks int, team []Person) []gateway.Message {
	system := departmentHead.MarkdownProfile
	user := fmt.Sprintf(
		"Project: %s\n\nSummary: %s\n\nDuration: %d weeks.\n\nTeam roster:\n%s\n\nProduce the overall project plan.",
		projectName, projectSummary, durationWeeks, buildRoster(team),
	)
	return []gateway.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func buildDailyPlanMessages(person Person, projectPlanText string, dayIndex, durationWeeks int, team []Person) []gateway.Message {
	system := person.MarkdownProfile
	user := fmt.Sprintf(
		"Project plan:\n%s\n\nDay index: %d of %d total days.\n\nTeam roster:\n%s\n\nProduce the daily plan for %s.",
		projectPlanText, dayIndex, durationWeeks, buildRoster(team), person.Name,
	)
	return []gateway.Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

func buildHourlyPlanMessages(person Person, projectPlanText, dailyPlanText string, tick int, reason string, team []Person, recent []domain.RecentEmail, allActiveProjects []string) []gateway.Message {
	var recentBlock strings.Builder
	for _, r := range recent {
		fmt.Fprintf(&recentBlock, "- [%s] %s -> %s: %s (thread %s)\n", r.EmailID, r.From, r.To, r.Subject, r.ThreadID)
	}
	var multiProject string
	if len(allActiveProjects) > 1 {
		multiProject = "\n\nOther active projects this week:\n- " + strings.Join(allActiveProjects, "\n- ")
	}
	user := fmt.Sprintf(
		"Project plan:\n%s\n\nDaily plan:\n%s\n\nTick: %d (trigger reason: %s)\n\nTeam roster:\n%s\n\nRecent emails:\n%s%s\n\nProduce the next-hour plan for %s.",
		projectPlanText, dailyPlanText, tick, reason, buildRoster(team), strings.TrimRight(recentBlock.String(), "\n"), multiProject, person.Name,
	)
	return []gateway.Message{{Role: "system", Content: person.MarkdownProfile}, {Role: "user", Content: user}}
}

func buildDailyReportMessages(person Person, projectPlanText string, dayIndex int, dailyPlanText, hourlySummary, minuteSchedule string) []gateway.Message {
	user := fmt.Sprintf(
		"Project plan:\n%s\n\nDay index: %d\n\nDaily plan:\n%s\n\nHourly activity log:\n%s\n\nMinute schedule:\n%s\n\nProduce the end-of-day report for %s.",
		projectPlanText, dayIndex, dailyPlanText, hourlySummary, minuteSchedule, person.Name,
	)
	return []gateway.Message{{Role: "system", Content: person.MarkdownProfile}, {Role: "user", Content: user}}
}

// --- per-minute plan-attempt limiter ---------------------------------------

type attemptKey struct {
	personID  int
	dayIndex  int
	tickOfDay int
}

// AttemptLimiter bounds hourly-plan generation attempts per
// (personId, dayIndex, tickOfDay), guarded by its own mutex so concurrently
// running planning tasks can increment it safely, per spec.md §4.6 and §5.
type AttemptLimiter struct {
	mu     sync.Mutex
	counts map[attemptKey]int
}

// NewAttemptLimiter creates an empty AttemptLimiter.
func NewAttemptLimiter() *AttemptLimiter {
	return &AttemptLimiter{counts: make(map[attemptKey]int)}
}

// TryAcquire records one attempt for the given tuple and reports whether it
// was admitted (count was below max before this call).
func (l *AttemptLimiter) TryAcquire(personID, dayIndex, tickOfDay, max int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := attemptKey{personID, dayIndex, tickOfDay}
	if l.counts[k] >= max {
		return false
	}
	l.counts[k]++
	return true
}

// Reset discards every tracked attempt count; used by the Engine
// Coordinator's reset().
func (l *AttemptLimiter) Reset() {
	l.mu.Lock()
	l.counts = make(map[attemptKey]int)
	l.mu.Unlock()
}

// PruneExcept drops every counter not matching the current
// (dayIndex, tickOfDay), called once per tick by the Engine Coordinator.
func (l *AttemptLimiter) PruneExcept(currentDayIndex, currentTickOfDay int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.counts {
		if k.dayIndex != currentDayIndex || k.tickOfDay != currentTickOfDay {
			delete(l.counts, k)
		}
	}
}
