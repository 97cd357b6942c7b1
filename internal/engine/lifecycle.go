package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/engine/planner"
	"github.com/nemit0/virtualoffice-sim/internal/engine/project"
	"github.com/nemit0/virtualoffice-sim/internal/simerr"
)

// ProjectSpec describes one project to seed at start, per spec.md §4.8's
// multi-project start mode.
type ProjectSpec struct {
	ProjectName         string
	ProjectSummary      string
	DurationWeeks       int
	StartWeek           int // 0 means "resolve automatically" (sequential packing)
	AssignedPersonNames []string
}

// StartRequest configures a simulation start. A nil request is valid and
// starts every known persona with no project plan, for callers that only
// want tick/runtime bookkeeping (mirrors engine.py's optional request).
type StartRequest struct {
	ProjectName        string
	ProjectSummary     string
	Projects           []ProjectSpec
	TotalDurationWeeks int
	RandomSeed         *int64
	ModelHint          string
	DepartmentHeadName string

	IncludePersonIDs   []int
	IncludePersonNames []string
	ExcludePersonIDs   []int
	ExcludePersonNames []string
}

// deriveSeed mirrors lifecycle.py's _derive_seed: an explicit seed wins,
// otherwise the seed is derived deterministically from the first project's
// name (or a fixed default) via SHA-256.
func deriveSeed(req *StartRequest) int64 {
	if req != nil && req.RandomSeed != nil {
		return *req.RandomSeed
	}
	name := "vdos-default"
	if req != nil {
		if len(req.Projects) > 0 {
			name = req.Projects[0].ProjectName
		} else if req.ProjectName != "" {
			name = req.ProjectName
		}
	}
	digest := sha256.Sum256([]byte(name))
	return int64(binary.BigEndian.Uint64(digest[:8]))
}

// Start seeds the simulation's randomness, resolves the active-persona set,
// initializes project plan(s), and schedules each active persona's kickoff
// messages, per engine.py's start()/lifecycle.py's start().
func (e *Engine) Start(ctx context.Context, req *StartRequest) (State, error) {
	seed := deriveSeed(req)
	e.mu.Lock()
	e.rnd.Seed(seed)
	e.mu.Unlock()

	if err := e.resetRuntimeState(); err != nil {
		return State{}, err
	}

	all, err := e.store.ListPersonas()
	if err != nil {
		return State{}, fmt.Errorf("engine: list personas: %w", err)
	}
	if len(all) == 0 {
		return State{}, simerr.New(simerr.InputInvalid, "engine.Start", fmt.Errorf("cannot start simulation without any personas"))
	}
	all = e.hydrateWorkHours(all)

	active, err := resolveActivePeople(req, all)
	if err != nil {
		return State{}, err
	}
	ids := make([]int, len(active))
	for i, p := range active {
		ids[i] = p.ID
	}
	e.setActivePersonIDs(ids)

	e.mu.Lock()
	if req != nil {
		e.modelHint = req.ModelHint
	}
	e.mu.Unlock()

	if req != nil {
		if err := e.initialiseProjectPlan(ctx, req, active); err != nil {
			return State{}, err
		}
	}

	if err := e.store.SetRunning(true); err != nil {
		return State{}, fmt.Errorf("engine: set running: %w", err)
	}
	e.tick.SetBaseTime(time.Now())
	e.runtime.SyncRuntimes(ids)

	e.scheduleKickoffs(active)

	return e.GetState()
}

// hydrateWorkHours parses each persona's WorkHours string into cached
// tick-of-day bounds via the Tick Manager, refreshing WorkStartTick/
// WorkEndTick in place.
func (e *Engine) hydrateWorkHours(people []domain.Persona) []domain.Persona {
	out := make([]domain.Persona, len(people))
	for i, p := range people {
		if p.WorkHours != "" {
			if start, end, err := e.tick.ParseWorkHours(p.WorkHours); err == nil {
				p.WorkStartTick, p.WorkEndTick = start, end
			}
		}
		out[i] = p
	}
	return out
}

func (e *Engine) resetRuntimeState() error {
	if err := e.runtime.ClearAll(); err != nil {
		return fmt.Errorf("engine: clear runtime: %w", err)
	}
	e.setActivePersonIDs(nil)
	if err := e.store.ClearAllStatusOverrides(); err != nil {
		return fmt.Errorf("engine: clear status overrides: %w", err)
	}
	return nil
}

// resolveActivePeople applies include/exclude filters, per
// lifecycle.py's _resolve_active_people.
func resolveActivePeople(req *StartRequest, available []domain.Persona) ([]domain.Persona, error) {
	if req == nil {
		return available, nil
	}

	includeIDs := toIntSet(req.IncludePersonIDs)
	includeNames := toLowerSet(req.IncludePersonNames)

	var matched []domain.Persona
	if len(includeIDs) > 0 || len(includeNames) > 0 {
		matchedIDs := map[int]bool{}
		matchedNames := map[string]bool{}
		for _, p := range available {
			if includeIDs[p.ID] || includeNames[strings.ToLower(p.Name)] {
				matched = append(matched, p)
				matchedIDs[p.ID] = true
				matchedNames[strings.ToLower(p.Name)] = true
			}
		}
		var missing []string
		var missingIDs []int
		for id := range includeIDs {
			if !matchedIDs[id] {
				missingIDs = append(missingIDs, id)
			}
		}
		sort.Ints(missingIDs)
		if len(missingIDs) > 0 {
			parts := make([]string, len(missingIDs))
			for i, id := range missingIDs {
				parts[i] = fmt.Sprint(id)
			}
			missing = append(missing, "ids "+strings.Join(parts, ", "))
		}
		var missingNames []string
		for name := range includeNames {
			if !matchedNames[name] {
				missingNames = append(missingNames, name)
			}
		}
		sort.Strings(missingNames)
		if len(missingNames) > 0 {
			missing = append(missing, "names "+strings.Join(missingNames, ", "))
		}
		if len(missing) > 0 {
			return nil, simerr.New(simerr.InputInvalid, "engine.Start", fmt.Errorf("requested personas not found: %s", strings.Join(missing, "; ")))
		}
	} else {
		matched = append(matched, available...)
	}

	excludeIDs := toIntSet(req.ExcludePersonIDs)
	excludeNames := toLowerSet(req.ExcludePersonNames)
	var filtered []domain.Persona
	for _, p := range matched {
		if excludeIDs[p.ID] || excludeNames[strings.ToLower(p.Name)] {
			continue
		}
		filtered = append(filtered, p)
	}
	if len(filtered) == 0 {
		return nil, simerr.New(simerr.InputInvalid, "engine.Start", fmt.Errorf("no personas remain after applying include/exclude filters"))
	}
	return filtered, nil
}

func toIntSet(ids []int) map[int]bool {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func toLowerSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			out[strings.ToLower(n)] = true
		}
	}
	return out
}

// resolveDepartmentHead picks requestedName's exact match, else the first
// is_department_head persona, else defaults to people[0] "so small teams can
// start without explicit leads", per engine.py's _resolve_department_head.
func resolveDepartmentHead(people []domain.Persona, requestedName string) (domain.Persona, error) {
	if len(people) == 0 {
		return domain.Persona{}, simerr.New(simerr.InputInvalid, "engine.resolveDepartmentHead", fmt.Errorf("no personas available"))
	}
	if requestedName != "" {
		for _, p := range people {
			if strings.EqualFold(p.Name, requestedName) {
				return p, nil
			}
		}
		return domain.Persona{}, simerr.New(simerr.InputInvalid, "engine.resolveDepartmentHead", fmt.Errorf("requested department head %q not found", requestedName))
	}
	for _, p := range people {
		if p.IsDepartmentHead {
			return p, nil
		}
	}
	return people[0], nil
}

// selectCollaborators returns up to 2 recipients for person, per engine.py's
// _select_collaborators: the department head plus one peer, or (when person
// is the head) up to two non-head peers.
func selectCollaborators(person domain.Persona, people []domain.Persona) []domain.Persona {
	if len(people) <= 1 {
		return nil
	}
	head := people[0]
	for _, p := range people {
		if p.IsDepartmentHead {
			head = p
			break
		}
	}
	if person.ID == head.ID {
		var out []domain.Persona
		for _, p := range people {
			if p.ID == person.ID {
				continue
			}
			out = append(out, p)
			if len(out) == 2 {
				break
			}
		}
		return out
	}
	out := []domain.Persona{head}
	for _, p := range people {
		if p.ID == person.ID || p.ID == head.ID {
			continue
		}
		out = append(out, p)
		break
	}
	return out
}

// scheduleKickoffs queues a "morning sync" chat and a short kickoff email
// for each active persona's first collaborator, 5 and 35 ticks after their
// work-hours start respectively. Failure is logged and non-fatal, per
// lifecycle.py's start().
func (e *Engine) scheduleKickoffs(active []domain.Persona) {
	for _, person := range active {
		recipients := selectCollaborators(person, active)
		if len(recipients) == 0 {
			continue
		}
		target := recipients[0]
		kickoffTick := 1 + maxInt(0, person.WorkStartTick) + 5

		if e.cfg.Locale == "ko" {
			e.comm.ScheduleDirectComm(person.ID, kickoffTick, domain.ChannelChat, target.ChatHandle, "",
				"좋은 아침입니다! 오늘 우선순위 빠르게 맞춰볼까요?")
			e.comm.ScheduleDirectComm(person.ID, kickoffTick+30, domain.ChannelEmail, target.EmailAddress, "킥오프",
				"오늘 진행할 작업 정리했습니다 — 문의사항 있으면 알려주세요.")
		} else {
			e.comm.ScheduleDirectComm(person.ID, kickoffTick, domain.ChannelChat, target.ChatHandle, "",
				"Morning! Quick sync on priorities?")
			e.comm.ScheduleDirectComm(person.ID, kickoffTick+30, domain.ChannelEmail, target.EmailAddress, "Quick kickoff",
				"Lining up tasks for today — ping me with blockers.")
		}
	}
}

// initialiseProjectPlan generates and stores the project plan(s) named in
// req, creates their group chat rooms, and — single-project mode only —
// seeds every team member's initial daily (day 0) and hourly (tick 0) plan.
// Multi-project mode skips initial person planning entirely "to avoid
// timeout", per engine.py; daily/hourly plans are then generated lazily on
// the first advance().
func (e *Engine) initialiseProjectPlan(ctx context.Context, req *StartRequest, active []domain.Persona) error {
	specs := req.Projects
	if len(specs) == 0 {
		if req.ProjectName == "" && req.ProjectSummary == "" {
			return nil
		}
		specs = []ProjectSpec{{ProjectName: req.ProjectName, ProjectSummary: req.ProjectSummary, DurationWeeks: req.TotalDurationWeeks}}
	}

	duration := req.TotalDurationWeeks
	if duration <= 0 {
		maxEnd := 0
		for _, s := range specs {
			start := s.StartWeek
			if start < 1 {
				start = 1
			}
			dw := s.DurationWeeks
			if dw < 1 {
				dw = 1
			}
			if end := start + dw - 1; end > maxEnd {
				maxEnd = end
			}
		}
		if maxEnd > 0 {
			duration = maxEnd
		} else {
			duration = 4
		}
	}
	e.mu.Lock()
	e.projectDuration = duration
	e.mu.Unlock()

	head, err := resolveDepartmentHead(active, req.DepartmentHeadName)
	if err != nil {
		return err
	}

	for i, spec := range specs {
		team := active
		if len(spec.AssignedPersonNames) > 0 {
			team = filterByNames(active, spec.AssignedPersonNames)
		}
		dw := spec.DurationWeeks
		if dw < 1 {
			dw = duration
		}
		startWeek := spec.StartWeek
		if startWeek < 1 {
			startWeek = 1
		}

		plannerTeam := toPlannerPersons(team)
		result, err := e.planner.GenerateProjectPlan(ctx, toPlannerPerson(head, nil), spec.ProjectName, spec.ProjectSummary, dw, plannerTeam, req.ModelHint)
		if err != nil {
			return fmt.Errorf("engine: generate project plan %q: %w", spec.ProjectName, err)
		}

		assignedIDs := make([]int, len(team))
		for j, p := range team {
			assignedIDs[j] = p.ID
		}
		stored, err := e.project.StoreProjectPlan(spec.ProjectName, spec.ProjectSummary, result.Content, result.ModelUsed, result.TokensUsed, head.ID, dw, startWeek, assignedIDs)
		if err != nil {
			return fmt.Errorf("engine: store project plan %q: %w", spec.ProjectName, err)
		}

		if _, err := e.project.CreateProjectChatRoom(ctx, stored.ID, stored.ProjectName, toProjectTeamMemberSlice(team), e.chatGW); err != nil {
			e.logger.Printf("engine: create project chat room for %q failed (non-fatal): %v", stored.ProjectName, err)
		}

		if len(specs) == 1 {
			for _, member := range team {
				schedule, _ := e.store.ListScheduleBlocksForPersonDay(member.ID, 0)
				pp := toPlannerPerson(member, schedule)
				dailyResult, err := e.planner.GenerateDailyPlan(ctx, pp, stored.Plan, 0, dw, plannerTeam, req.ModelHint)
				if err != nil {
					e.logger.Printf("engine: initial daily plan for %s failed (non-fatal): %v", member.Name, err)
					continue
				}
				if _, err := e.planner.GenerateHourlyPlan(ctx, pp, stored.Plan, dailyResult.Content, 0, "initialisation", plannerTeam, nil, nil, req.ModelHint); err != nil {
					e.logger.Printf("engine: initial hourly plan for %s failed (non-fatal): %v", member.Name, err)
				}
			}
		}
		_ = i
	}
	return nil
}

func filterByNames(people []domain.Persona, names []string) []domain.Persona {
	want := toLowerSet(names)
	var out []domain.Persona
	for _, p := range people {
		if want[strings.ToLower(p.Name)] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return people
	}
	return out
}

func toPlannerPersons(people []domain.Persona) []planner.Person {
	out := make([]planner.Person, len(people))
	for i, p := range people {
		out[i] = toPlannerPerson(p, nil)
	}
	return out
}

func toProjectTeamMemberSlice(people []domain.Persona) []project.TeamMember {
	out := make([]project.TeamMember, len(people))
	for i, p := range people {
		out[i] = toProjectTeamMember(p)
	}
	return out
}

// Stop halts the simulation, generating a final rollup report first if it
// was running, per lifecycle.py's stop().
func (e *Engine) Stop(ctx context.Context) (State, error) {
	if err := e.tick.StopAutoTick(2 * time.Second); err != nil {
		e.logger.Printf("engine: stop auto-tick: %v", err)
	}
	st, err := e.store.GetSimulationState()
	if err != nil {
		return State{}, fmt.Errorf("engine: stop get state: %w", err)
	}
	if st.IsRunning {
		if _, err := e.GenerateSimulationReport(st.CurrentTick, true); err != nil {
			e.logger.Printf("engine: generate stop report (non-fatal): %v", err)
		}
	}
	if err := e.store.SetRunning(false); err != nil {
		return State{}, fmt.Errorf("engine: set not running: %w", err)
	}
	e.setActivePersonIDs(nil)
	return e.GetState()
}

// Reset clears runtime and derived-plan state, preserving personas, per
// lifecycle.py's reset().
func (e *Engine) Reset() (State, error) {
	if err := e.tick.StopAutoTick(2 * time.Second); err != nil {
		e.logger.Printf("engine: reset stop auto-tick: %v", err)
	}
	e.advanceMu.Lock()
	defer e.advanceMu.Unlock()

	if err := e.store.ResetSimulation(true); err != nil {
		return State{}, fmt.Errorf("engine: reset simulation: %w", err)
	}
	if err := e.resetRuntimeState(); err != nil {
		return State{}, err
	}
	e.project.ClearCache()
	e.planner.Service().Metrics().Clear()
	e.planner.Attempts().Reset()
	e.mu.Lock()
	e.modelHint = ""
	e.projectDuration = 4
	e.mu.Unlock()

	if _, err := e.store.ListPersonas(); err != nil {
		return State{}, fmt.Errorf("engine: reset list personas: %w", err)
	}
	return e.GetState()
}

// ResetFull additionally deletes every persona and schedule block, per
// lifecycle.py's reset_full(). Email/chat backend data lives behind the
// gateway interfaces and is outside the State Store's ownership; clearing
// it is the concrete gateway adapter's responsibility, not Engine's.
func (e *Engine) ResetFull() (State, error) {
	if _, err := e.Reset(); err != nil {
		return State{}, err
	}
	e.advanceMu.Lock()
	defer e.advanceMu.Unlock()
	if err := e.store.ResetSimulation(false); err != nil {
		return State{}, fmt.Errorf("engine: reset full: %w", err)
	}
	return e.GetState()
}
