// Package engine is the Engine Coordinator (C8): the single entry point that
// wires the State Store (C1), Tick Manager (C2), Worker Runtime Manager
// (C3), Project Manager (C4), Event System (C5), Planning Orchestrator (C6),
// and Communication Hub (C7) into one tick-driven simulation, serialized by
// a single advance mutex. Grounded directly on
// original_source/.../sim_manager/engine.py and
// original_source/.../sim_manager/core/lifecycle.py, which the original
// itself splits into a thin facade over extracted collaborators — the same
// decomposition this module already has as separate packages.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/engine/comm"
	"github.com/nemit0/virtualoffice-sim/internal/engine/event"
	"github.com/nemit0/virtualoffice-sim/internal/engine/planner"
	"github.com/nemit0/virtualoffice-sim/internal/engine/project"
	"github.com/nemit0/virtualoffice-sim/internal/engine/runtime"
	"github.com/nemit0/virtualoffice-sim/internal/engine/tickmgr"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
)

// Store is the subset of the State Store the Engine Coordinator calls
// directly; everything else goes through C1-C7's own narrow Store
// interfaces.
type Store interface {
	ListPersonas() ([]domain.Persona, error)
	UpsertScheduleBlock(b domain.ScheduleBlock) error
	ListScheduleBlocksForPersonDay(personID, dayIndex int) ([]domain.ScheduleBlock, error)

	GetSimulationState() (domain.SimulationState, error)
	SetTick(tick int, reason string) error
	SetCurrentTick(tick int) error
	SetRunning(running bool) error
	SetAutoTick(auto bool) error

	ListStatusOverrides() ([]domain.WorkerStatusOverride, error)
	SetStatusOverride(workerID int, status string, untilTick int, reason string) error
	ClearStatusOverride(workerID int) error
	ClearAllStatusOverrides() error
	ExpireStatusOverrides(currentTick int) ([]int, error)

	ResetSimulation(preservePersonas bool) error
	DeleteWorkerPlansAfter(cutoff int) error
	DeleteHourlySummariesAfter(cutoffHour int) error
	DeleteDailyReportsAfter(cutoffDay int) error
	DeleteExchangeLogAfter(cutoff time.Time) error
	DeleteTickLogAfter(cutoff int) error
	DeleteEventsAfter(cutoff int) error

	LogExchange(e domain.WorkerExchangeLog) error
	MaxExchangeTick() (int, error)
	ListExchangesForReplay(simDatetime time.Time) ([]domain.WorkerExchangeLog, error)
	CountExchangesSince(sinceTick int) (emails, chats int, err error)
	InsertSimulationReport(r domain.SimulationReport) error
}

// Config bundles the environment-driven knobs the Engine Coordinator needs,
// a projection of config.Configuration kept free of an import cycle.
type Config struct {
	HoursPerDay             int
	TickIntervalSeconds     int
	ContactCooldownTicks    int
	MaxHourlyPlansPerMinute int
	MaxPlanningWorkers      int
	PlannerStrict           bool
	AutoPauseOnProjectEnd   bool
	Locale                  string
	ExternalStakeholders    []string
	SimManagerEmail         string
	SimManagerHandle        string
}

// Engine is the Engine Coordinator.
type Engine struct {
	store   Store
	tick    *tickmgr.Manager
	runtime *runtime.Manager
	project *project.Manager
	events  *event.System
	planner *planner.Orchestrator
	comm    *comm.Hub

	emailGW gateway.EmailGateway
	chatGW  gateway.ChatGateway
	loc     *locale.Manager
	logger  *log.Logger

	cfg Config

	advanceMu sync.Mutex // the single-logical-writer lock for every state advance

	mu               sync.Mutex // guards the small fields below
	activePersonIDs  map[int]bool
	activeIDsSet     bool // whether activePersonIDs reflects an explicit start() filter
	projectPlanID    *int
	projectDuration  int
	autoPauseEnabled bool
	modelHint        string
	tickInterval     time.Duration
	rnd              *rand.Rand
}

// New wires every constituent manager into an Engine Coordinator. The
// caller owns constructing store/tick/runtime/project/events/planner/comm
// beforehand; New merely assembles them, mirroring how engine.py's
// __init__ receives already-built collaborators.
func New(
	store Store,
	tick *tickmgr.Manager,
	rt *runtime.Manager,
	proj *project.Manager,
	events *event.System,
	plan *planner.Orchestrator,
	hub *comm.Hub,
	emailGW gateway.EmailGateway,
	chatGW gateway.ChatGateway,
	loc *locale.Manager,
	logger *log.Logger,
	cfg Config,
) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store: store, tick: tick, runtime: rt, project: proj, events: events, planner: plan, comm: hub,
		emailGW: emailGW, chatGW: chatGW, loc: loc, logger: logger, cfg: cfg,
		autoPauseEnabled: cfg.AutoPauseOnProjectEnd,
		tickInterval:     time.Duration(cfg.TickIntervalSeconds) * time.Second,
		projectDuration:  4,
		rnd:              rand.New(rand.NewSource(1)),
	}
}

// State is the public simulation-state view, per spec.md §8.
type State struct {
	CurrentTick int
	IsRunning   bool
	AutoTick    bool
	SimTime     string
}

// GetState returns the current simulation state.
func (e *Engine) GetState() (State, error) {
	st, err := e.store.GetSimulationState()
	if err != nil {
		return State{}, fmt.Errorf("engine: get state: %w", err)
	}
	return State{
		CurrentTick: st.CurrentTick,
		IsRunning:   st.IsRunning,
		AutoTick:    st.AutoTick,
		SimTime:     e.tick.FormatSimTime(st.CurrentTick),
	}, nil
}

// currentWeek computes the 1-indexed week from the simulation's current
// tick, per engine.py's _get_current_week / lifecycle.py's
// get_auto_pause_status: week = max(1, (day/5)+1), day = (tick-1)/H for
// tick > 0, else 0.
func (e *Engine) currentWeek(currentTick int) int {
	if currentTick <= 0 {
		return 1
	}
	day := e.tick.DayIndex(currentTick)
	return maxInt(1, day/5+1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// activePeople resolves the current active-persona set against the full
// roster, dropping any id that no longer exists and shrinking the tracked
// set to match, per engine.py's _get_active_people.
func (e *Engine) activePeople(ctx context.Context) ([]domain.Persona, error) {
	all, err := e.store.ListPersonas()
	if err != nil {
		return nil, fmt.Errorf("engine: list personas: %w", err)
	}
	all = e.hydrateWorkHours(all)

	e.mu.Lock()
	explicit := e.activeIDsSet
	ids := make(map[int]bool, len(e.activePersonIDs))
	for id := range e.activePersonIDs {
		ids[id] = true
	}
	e.mu.Unlock()

	if !explicit {
		return all, nil
	}

	byID := make(map[int]domain.Persona, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	var out []domain.Persona
	resolved := make(map[int]bool, len(ids))
	for id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			resolved[id] = true
		}
	}
	if len(resolved) != len(ids) {
		e.mu.Lock()
		e.activePersonIDs = resolved
		e.mu.Unlock()
	}
	sortPersonasByID(out)
	return out, nil
}

func sortPersonasByID(ps []domain.Persona) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].ID < ps[j-1].ID; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

func (e *Engine) setActivePersonIDs(ids []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ids == nil {
		e.activePersonIDs = nil
		e.activeIDsSet = false
		return
	}
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	e.activePersonIDs = set
	e.activeIDsSet = true
}

func toCommPerson(p domain.Persona) comm.Person {
	return comm.Person{ID: p.ID, Name: p.Name, Role: p.Role, EmailAddress: p.EmailAddress, ChatHandle: p.ChatHandle, IsDepartmentHead: p.IsDepartmentHead}
}

func toCommRoster(ps []domain.Persona) []comm.Person {
	out := make([]comm.Person, len(ps))
	for i, p := range ps {
		out[i] = toCommPerson(p)
	}
	return out
}

func toEventPerson(p domain.Persona) event.Person {
	return event.Person{ID: p.ID, Name: p.Name, EmailAddress: p.EmailAddress, IsDepartmentHead: p.IsDepartmentHead}
}

func toPlannerPerson(p domain.Persona, schedule []domain.ScheduleBlock) planner.Person {
	return planner.Person{ID: p.ID, Name: p.Name, Role: p.Role, EmailAddress: p.EmailAddress, ChatHandle: p.ChatHandle, MarkdownProfile: p.MarkdownProfile, Schedule: schedule}
}

func toProjectTeamMember(p domain.Persona) project.TeamMember {
	return project.TeamMember{ID: p.ID, Name: p.Name, Role: p.Role, ChatHandle: p.ChatHandle}
}

func findPersona(ps []domain.Persona, id int) (domain.Persona, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Persona{}, false
}
