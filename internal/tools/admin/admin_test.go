package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/engine"
	"github.com/nemit0/virtualoffice-sim/internal/engine/comm"
	"github.com/nemit0/virtualoffice-sim/internal/engine/event"
	"github.com/nemit0/virtualoffice-sim/internal/engine/planner"
	"github.com/nemit0/virtualoffice-sim/internal/engine/project"
	"github.com/nemit0/virtualoffice-sim/internal/engine/runtime"
	"github.com/nemit0/virtualoffice-sim/internal/engine/tickmgr"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
)

// fakeStore is a minimal in-memory store satisfying every narrow Store
// interface the Engine Coordinator and its collaborators need, just enough
// to exercise each admin tool end-to-end. Mirrors internal/engine's own
// test fakeStore, since production wires the same concrete store into all
// of these packages.
type fakeStore struct {
	personas  []domain.Persona
	state     domain.SimulationState
	overrides map[int]domain.WorkerStatusOverride
	plans     map[string]domain.WorkerPlan
	events    []domain.Event
	inbox     map[int][]domain.InboundMessage
	exchanges []domain.WorkerExchangeLog
	reports   []domain.SimulationReport
}

func newFakeStore(personas []domain.Persona) *fakeStore {
	return &fakeStore{
		personas:  personas,
		overrides: make(map[int]domain.WorkerStatusOverride),
		plans:     make(map[string]domain.WorkerPlan),
		inbox:     make(map[int][]domain.InboundMessage),
	}
}

func (f *fakeStore) ListPersonas() ([]domain.Persona, error) { return f.personas, nil }
func (f *fakeStore) UpsertScheduleBlock(b domain.ScheduleBlock) error { return nil }
func (f *fakeStore) ListScheduleBlocksForPersonDay(personID, dayIndex int) ([]domain.ScheduleBlock, error) {
	return nil, nil
}
func (f *fakeStore) GetSimulationState() (domain.SimulationState, error) { return f.state, nil }
func (f *fakeStore) SetTick(tick int, reason string) error               { f.state.CurrentTick = tick; return nil }
func (f *fakeStore) SetCurrentTick(tick int) error                       { f.state.CurrentTick = tick; return nil }
func (f *fakeStore) SetRunning(running bool) error                      { f.state.IsRunning = running; return nil }
func (f *fakeStore) SetAutoTick(auto bool) error                        { f.state.AutoTick = auto; return nil }

func (f *fakeStore) ListStatusOverrides() ([]domain.WorkerStatusOverride, error) {
	out := make([]domain.WorkerStatusOverride, 0, len(f.overrides))
	for _, o := range f.overrides {
		out = append(out, o)
	}
	return out, nil
}
func (f *fakeStore) SetStatusOverride(workerID int, status string, untilTick int, reason string) error {
	f.overrides[workerID] = domain.WorkerStatusOverride{WorkerID: workerID, Status: status, UntilTick: untilTick, Reason: reason}
	return nil
}
func (f *fakeStore) ClearStatusOverride(workerID int) error { delete(f.overrides, workerID); return nil }
func (f *fakeStore) ClearAllStatusOverrides() error         { f.overrides = map[int]domain.WorkerStatusOverride{}; return nil }
func (f *fakeStore) ExpireStatusOverrides(currentTick int) ([]int, error) {
	var expired []int
	for id, o := range f.overrides {
		if o.UntilTick <= currentTick {
			expired = append(expired, id)
			delete(f.overrides, id)
		}
	}
	return expired, nil
}

func (f *fakeStore) ResetSimulation(preservePersonas bool) error {
	f.state = domain.SimulationState{}
	f.overrides = map[int]domain.WorkerStatusOverride{}
	f.plans = map[string]domain.WorkerPlan{}
	f.events = nil
	f.inbox = map[int][]domain.InboundMessage{}
	f.exchanges = nil
	if !preservePersonas {
		f.personas = nil
	}
	return nil
}
func (f *fakeStore) DeleteWorkerPlansAfter(cutoff int) error      { return nil }
func (f *fakeStore) DeleteHourlySummariesAfter(cutoffHour int) error { return nil }
func (f *fakeStore) DeleteDailyReportsAfter(cutoffDay int) error  { return nil }
func (f *fakeStore) DeleteExchangeLogAfter(cutoff time.Time) error { return nil }
func (f *fakeStore) DeleteTickLogAfter(cutoff int) error          { return nil }
func (f *fakeStore) DeleteEventsAfter(cutoff int) error {
	kept := f.events[:0]
	for _, e := range f.events {
		if e.AtTick <= cutoff {
			kept = append(kept, e)
		}
	}
	f.events = kept
	return nil
}

func (f *fakeStore) LogExchange(e domain.WorkerExchangeLog) error { f.exchanges = append(f.exchanges, e); return nil }
func (f *fakeStore) MaxExchangeTick() (int, error) {
	max := 0
	for _, e := range f.exchanges {
		if e.Tick > max {
			max = e.Tick
		}
	}
	return max, nil
}
func (f *fakeStore) ListExchangesForReplay(simDatetime time.Time) ([]domain.WorkerExchangeLog, error) {
	var out []domain.WorkerExchangeLog
	for _, e := range f.exchanges {
		if !e.SentAt.After(simDatetime) {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeStore) CountExchangesSince(sinceTick int) (emails, chats int, err error) {
	for _, e := range f.exchanges {
		if e.Tick < sinceTick {
			continue
		}
		if e.Channel == domain.ChannelEmail {
			emails++
		} else {
			chats++
		}
	}
	return emails, chats, nil
}
func (f *fakeStore) InsertSimulationReport(r domain.SimulationReport) error {
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeStore) QueueMessage(m domain.InboundMessage) (int, error) {
	id := len(f.inbox[m.RecipientID]) + 1
	f.inbox[m.RecipientID] = append(f.inbox[m.RecipientID], m)
	return id, nil
}
func (f *fakeStore) DrainMessages(recipientID int) ([]domain.InboundMessage, error) {
	out := f.inbox[recipientID]
	f.inbox[recipientID] = nil
	return out, nil
}
func (f *fakeStore) RemoveMessages(ids []int) error { return nil }
func (f *fakeStore) ClearAllMessages() error        { f.inbox = map[int][]domain.InboundMessage{}; return nil }

func (f *fakeStore) StoreProjectPlan(p domain.ProjectPlan, assignedPersonIDs []int) (domain.ProjectPlan, error) {
	p.ID = 1
	return p, nil
}
func (f *fakeStore) GetProjectPlan(id *int) (domain.ProjectPlan, bool, error) {
	return domain.ProjectPlan{}, false, nil
}
func (f *fakeStore) GetActiveProjectsForPerson(personID, week int) ([]domain.ProjectPlan, error) {
	return nil, nil
}
func (f *fakeStore) GetAllProjectsActiveInWeek(week int) ([]domain.ProjectPlan, error) { return nil, nil }
func (f *fakeStore) GetProjectsStartingAfterWeek(week int) ([]domain.ProjectPlan, error) {
	return nil, nil
}
func (f *fakeStore) AssignedPersonIDsForProject(projectID int) ([]int, error) { return nil, nil }
func (f *fakeStore) ListAllProjects() ([]domain.ProjectPlan, error)           { return nil, nil }
func (f *fakeStore) CreateProjectChatRoomRecord(projectID int, slug, name string) error { return nil }
func (f *fakeStore) GetActiveProjectChatRoom(projectID int) (string, bool, error) {
	return "", false, nil
}
func (f *fakeStore) ArchiveProjectChatRoom(projectID int) (bool, error)   { return false, nil }
func (f *fakeStore) ListActiveProjectIDsWithRooms() ([]int, error)        { return nil, nil }

func (f *fakeStore) InsertEvent(e domain.Event) (domain.Event, error) {
	e.ID = len(f.events) + 1
	f.events = append(f.events, e)
	return e, nil
}
func (f *fakeStore) ListEvents(projectID, targetID *int) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range f.events {
		if projectID != nil && e.ProjectID != *projectID {
			continue
		}
		if targetID != nil {
			match := false
			for _, t := range e.TargetIDs {
				if t == *targetID {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func planKey(personID, tick int, planType domain.PlanType) string {
	return fmt.Sprintf("%d:%d:%s", personID, tick, planType)
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
	return nil, nil
}
func (f *fakeStore) UpsertHourlySummary(sum domain.HourlySummary) error { return nil }
func (f *fakeStore) GetHourlySummary(personID, hourIndex int) (domain.HourlySummary, bool, error) {
	return domain.HourlySummary{}, false, nil
}
func (f *fakeStore) UpsertDailyReport(r domain.DailyReport) error { return nil }
func (f *fakeStore) GetDailyReport(personID, dayIndex int) (domain.DailyReport, bool, error) {
	return domain.DailyReport{}, false, nil
}

type fakeLLM struct{}

func (f *fakeLLM) Generate(ctx context.Context, messages []gateway.Message, model string) (string, int, error) {
	return "generated content", 10, nil
}

type fakeEmail struct{}

func (f *fakeEmail) EnsureMailbox(ctx context.Context, address, displayName string) error { return nil }
func (f *fakeEmail) SendEmail(ctx context.Context, req gateway.SendEmailRequest) (string, error) {
	return "email-1", nil
}

type fakeChat struct{}

func (f *fakeChat) EnsureUser(ctx context.Context, handle, displayName string) error { return nil }
func (f *fakeChat) SendDM(ctx context.Context, req gateway.SendDMRequest) error       { return nil }
func (f *fakeChat) CreateRoom(ctx context.Context, req gateway.CreateRoomRequest) (string, error) {
	return "room-1", nil
}
func (f *fakeChat) SendRoomMessage(ctx context.Context, slug string, req gateway.SendRoomMessageRequest) error {
	return nil
}

func testPersonas() []domain.Persona {
	return []domain.Persona{
		{ID: 1, Name: "Alex Head", Role: "Engineering Lead", EmailAddress: "alex@example.com", ChatHandle: "@alex", WorkHours: "09:00-17:00", IsDepartmentHead: true},
		{ID: 2, Name: "Bao Dev", Role: "Engineer", EmailAddress: "bao@example.com", ChatHandle: "@bao", WorkHours: "09:00-17:00"},
	}
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	store := newFakeStore(testPersonas())
	tm := tickmgr.New(24, nil)
	tm.SetBaseTime(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	rt := runtime.New(store)
	loc, err := locale.New("en", "")
	if err != nil {
		t.Fatalf("locale.New: %v", err)
	}
	proj := project.New(store, nil)
	ev := event.New(store, loc, 1)
	service := planner.NewService(&fakeLLM{}, false)
	email := &fakeEmail{}
	chat := &fakeChat{}
	hub := comm.New(email, chat, store, loc, 5, nil)
	orch := planner.New(store, hub, service)

	return engine.New(store, tm, rt, proj, ev, orch, hub, email, chat, loc, nil, engine.Config{
		HoursPerDay:             24,
		TickIntervalSeconds:     0,
		ContactCooldownTicks:    5,
		MaxHourlyPlansPerMinute: 10,
		MaxPlanningWorkers:      4,
		PlannerStrict:           false,
		AutoPauseOnProjectEnd:   true,
		Locale:                  "en",
		SimManagerEmail:         "sim-manager@example.com",
		SimManagerHandle:        "@sim-manager",
	})
}

func testServer(t *testing.T) *server.MCPServer {
	t.Helper()
	s := server.NewMCPServer("test", "1.0.0")
	eng := newTestEngine(t)
	Register(s, eng, log.New(io.Discard, "", 0), WithAutoTickControl())
	return s
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)
	respBytes, err := json.Marshal(respJSON)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return &result, nil
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func TestStartSimulationActivatesRoster(t *testing.T) {
	srv := testServer(t)
	result, err := callTool(t, srv, "start_simulation", map[string]any{
		"project_name":    "Checkout Revamp",
		"project_summary": "Rebuild the checkout flow",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "started:") {
		t.Errorf("unexpected result text: %s", resultText(t, result))
	}
}

func TestGetSimulationStateReportsTick(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := callTool(t, srv, "get_simulation_state", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "tick=") {
		t.Errorf("unexpected result text: %s", resultText(t, result))
	}
}

func TestAdvanceTicksMovesTick(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := callTool(t, srv, "advance_ticks", map[string]any{"ticks": float64(2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "current_tick=2") {
		t.Errorf("unexpected result text: %s", resultText(t, result))
	}
}

func TestInjectEventThenListEvents(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := callTool(t, srv, "inject_event", map[string]any{
		"type": "blocker", "at_tick": float64(3), "target_person_ids": []any{float64(1)},
		"description": "database is down",
	}); err != nil {
		t.Fatalf("inject_event: %v", err)
	}

	result, err := callTool(t, srv, "list_events", map[string]any{})
	if err != nil {
		t.Fatalf("list_events: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "type=blocker") {
		t.Errorf("expected injected event in listing, got: %s", text)
	}
}

func TestSetListClearStatusOverride(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := callTool(t, srv, "set_status_override", map[string]any{
		"worker_id": float64(2), "status": "Vacation", "until_tick": float64(48), "reason": "pre-planned leave",
	}); err != nil {
		t.Fatalf("set_status_override: %v", err)
	}

	listResult, err := callTool(t, srv, "list_status_overrides", map[string]any{})
	if err != nil {
		t.Fatalf("list_status_overrides: %v", err)
	}
	if !strings.Contains(resultText(t, listResult), "worker=2 status=Vacation") {
		t.Errorf("unexpected overrides listing: %s", resultText(t, listResult))
	}

	if _, err := callTool(t, srv, "clear_status_override", map[string]any{"worker_id": float64(2)}); err != nil {
		t.Fatalf("clear_status_override: %v", err)
	}
	clearedResult, err := callTool(t, srv, "list_status_overrides", map[string]any{})
	if err != nil {
		t.Fatalf("list_status_overrides after clear: %v", err)
	}
	if !strings.Contains(resultText(t, clearedResult), "no active overrides") {
		t.Errorf("expected no overrides after clear, got: %s", resultText(t, clearedResult))
	}
}

func TestResetSimulationClearsTick(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := callTool(t, srv, "advance_ticks", map[string]any{"ticks": float64(3)}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	result, err := callTool(t, srv, "reset_simulation", map[string]any{})
	if err != nil {
		t.Fatalf("reset_simulation: %v", err)
	}
	if !strings.Contains(resultText(t, result), "tick=0") {
		t.Errorf("expected tick=0 after reset, got: %s", resultText(t, result))
	}
}

func TestRewindDiscardsLaterTicks(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := callTool(t, srv, "advance_ticks", map[string]any{"ticks": float64(5)}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	result, err := callTool(t, srv, "rewind_simulation", map[string]any{"cutoff_tick": float64(2)})
	if err != nil {
		t.Fatalf("rewind_simulation: %v", err)
	}
	if !strings.Contains(resultText(t, result), "tick=2") {
		t.Errorf("expected tick=2 after rewind, got: %s", resultText(t, result))
	}
}

func TestGetAutoPauseStatusReportsWeek(t *testing.T) {
	srv := testServer(t)
	if _, err := callTool(t, srv, "start_simulation", map[string]any{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := callTool(t, srv, "get_auto_pause_status", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(resultText(t, result), "week=") {
		t.Errorf("unexpected result text: %s", resultText(t, result))
	}
}
