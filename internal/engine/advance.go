package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/engine/comm"
	"github.com/nemit0/virtualoffice-sim/internal/engine/event"
	"github.com/nemit0/virtualoffice-sim/internal/engine/planner"
)

// AdvanceResult is the outcome of one Advance call, per spec.md §4.8.
type AdvanceResult struct {
	TicksAdvanced    int
	CurrentTick      int
	EmailsSent       int
	ChatMessagesSent int
	SimTime          string
}

// planTaskTimeout bounds a single hourly-plan generation inside the parallel
// pool; grounded on the original's per-worker thread timeout.
const planTaskTimeout = 240 * time.Second

// Advance moves the simulation forward by ticks, one at a time, serialized
// by advanceMu. Each tick runs: status-override expiry, event processing,
// per-persona planning (daily then hourly, parallelized across personas),
// scheduled-comm dispatch, and hourly-summary/daily-report rollups at their
// respective boundaries. Grounded on engine.py's advance/_advance_one_tick.
func (e *Engine) Advance(ctx context.Context, ticks int, reason string) (AdvanceResult, error) {
	if ticks < 1 {
		ticks = 1
	}
	e.advanceMu.Lock()
	defer e.advanceMu.Unlock()

	var result AdvanceResult
	for i := 0; i < ticks; i++ {
		emails, chats, err := e.advanceOneTick(ctx, reason)
		if err != nil {
			return result, err
		}
		result.TicksAdvanced++
		result.EmailsSent += emails
		result.ChatMessagesSent += chats
	}

	st, err := e.store.GetSimulationState()
	if err != nil {
		return result, fmt.Errorf("engine: advance get state: %w", err)
	}
	result.CurrentTick = st.CurrentTick
	result.SimTime = e.tick.FormatSimTime(st.CurrentTick)
	return result, nil
}

func (e *Engine) advanceOneTick(ctx context.Context, reason string) (emailsSent, chatsSent int, err error) {
	st, err := e.store.GetSimulationState()
	if err != nil {
		return 0, 0, fmt.Errorf("engine: get state: %w", err)
	}
	nextTick := st.CurrentTick + 1

	e.comm.ResetTickDedup()
	if err := e.store.SetTick(nextTick, reason); err != nil {
		return 0, 0, fmt.Errorf("engine: set tick: %w", err)
	}

	expired, err := e.store.ExpireStatusOverrides(nextTick)
	if err != nil {
		return 0, 0, fmt.Errorf("engine: expire status overrides: %w", err)
	}
	for _, id := range expired {
		e.logger.Printf("engine: status override expired for worker %d at tick %d", id, nextTick)
	}

	active, err := e.activePeople(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(active) == 0 {
		return 0, 0, nil
	}

	overrides, err := e.statusOverrideMap()
	if err != nil {
		return 0, 0, err
	}

	eventPeople := make([]event.Person, len(active))
	for i, p := range active {
		eventPeople[i] = toEventPerson(p)
	}
	eventResult, err := e.events.ProcessEventsForTick(ctx, nextTick, eventPeople, e.cfg.HoursPerDay, overrides, event.Deps{
		EmailGateway: e.emailGW, SimManagerEmail: e.cfg.SimManagerEmail,
		Queue: e.runtime, Exchange: e.storeExchange(), StatusSetter: e.store,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("engine: process events: %w", err)
	}

	dayIndex := e.tick.DayIndex(nextTick)
	tickOfDay := e.tick.TickOfDay(nextTick)
	e.planner.Attempts().PruneExcept(dayIndex, tickOfDay)

	overrides, err = e.statusOverrideMap()
	if err != nil {
		return 0, 0, err
	}

	roster := toCommRoster(active)
	week := e.currentWeek(nextTick)
	sentAt := e.tick.SimDatetimeForTick(nextTick)

	var tasks []planner.HourlyPlanTask
	for _, person := range active {
		if ov, ok := overrides[person.ID]; ok && ov.Status != "" {
			continue // on leave: skip planning and dispatch entirely this tick
		}

		incoming, err := e.runtime.Drain(person.ID)
		if err != nil {
			e.logger.Printf("engine: drain inbox for %s failed (non-fatal): %v", person.Name, err)
		}
		adjustments := append([]string(nil), eventResult.Adjustments[person.ID]...)

		if !isWorkingHours(person, tickOfDay) {
			// off hours: nothing is lost, the drained inbox and the
			// adjustment notes are requeued for the next tick the persona
			// is actually planned, per engine.py's off-hours requeue path.
			e.requeueForLater(person, nextTick, incoming, adjustments)
			continue
		}

		if !shouldPlanThisTick(incoming, adjustments, reason, tickOfDay) {
			continue
		}
		if !e.planner.Attempts().TryAcquire(person.ID, dayIndex, tickOfDay, e.cfg.MaxHourlyPlansPerMinute) {
			e.requeueForLater(person, nextTick, incoming, adjustments)
			continue
		}

		adjustments = e.foldIncomingIntoAdjustments(ctx, person, active, incoming, adjustments, nextTick, sentAt, &chatsSent)

		projectText, dailyText, projectActive, allActive, err := e.planningContext(ctx, person, week, dayIndex)
		if err != nil {
			e.logger.Printf("engine: planning context for %s failed (non-fatal): %v", person.Name, err)
			continue
		}
		if !projectActive {
			continue
		}

		reasonText := planReason(person, nextTick, tickOfDay, len(adjustments) > 0)
		tasks = append(tasks, planner.HourlyPlanTask{
			Person: toPlannerPerson(person, nil), ProjectPlanText: projectText, DailyPlanText: dailyText,
			Tick: nextTick, Reason: reasonText, Team: toPlannerPersons(active),
			Adjustments: adjustments, AllActiveProjects: allActive, ModelHint: e.modelHintValue(),
		})
	}

	results := e.planner.GenerateHourlyPlansParallel(ctx, tasks, e.cfg.MaxPlanningWorkers, planTaskTimeout)
	for _, r := range results {
		if r.Result.Content == "" {
			continue
		}
		e.comm.ScheduleFromHourlyPlan(r.Person.ID, r.Result.Content, nextTick, e.cfg.HoursPerDay)
	}

	deps := comm.DispatchDeps{
		SimDatetimeForTick: e.tick.SimDatetimeForTick,
		CurrentWeek:        func() int { return week },
		ActiveProjectIDs:   e.activeProjectIDsForPerson,
		ProjectChatRoom:    e.projectChatRoomSlug,
	}
	available := make([]domain.Persona, 0, len(active))
	for _, person := range active {
		if ov, ok := overrides[person.ID]; !ok || ov.Status == "" {
			available = append(available, person)
		}
	}
	for _, person := range available {
		cp := toCommPerson(person)
		em, ch := e.comm.Dispatch(ctx, cp, nextTick, roster, deps)
		emailsSent += em
		chatsSent += ch

		if em == 0 && ch == 0 {
			em2, ch2 := e.fallbackDispatch(ctx, cp, roster, nextTick, person, available, deps)
			emailsSent += em2
			chatsSent += ch2
		}
	}

	if nextTick%60 == 0 {
		hourIndex := tickmgrHourIndex(nextTick)
		for _, person := range active {
			if _, err := e.planner.GenerateHourlySummary(ctx, toPlannerPerson(person, nil), hourIndex, e.modelHintValue()); err != nil {
				e.logger.Printf("engine: hourly summary for %s failed (non-fatal): %v", person.Name, err)
			}
		}
	}

	if nextTick%e.cfg.HoursPerDay == 0 {
		for _, person := range active {
			projectText, _ := e.projectPlanTextForPerson(person, week)
			if _, err := e.planner.GenerateDailyReport(ctx, toPlannerPerson(person, nil), dayIndex, projectText, nil, e.cfg.HoursPerDay, e.modelHintValue()); err != nil {
				e.logger.Printf("engine: daily report for %s failed (non-fatal): %v", person.Name, err)
			}
		}
		if e.cfg.AutoPauseOnProjectEnd {
			if err := e.project.ArchiveCompletedProjectRooms(week); err != nil {
				e.logger.Printf("engine: archive completed project rooms failed (non-fatal): %v", err)
			}
		}
	}

	return emailsSent, chatsSent, nil
}

// tickmgrHourIndex mirrors tickmgr.HourIndex without importing the package
// solely for this constant arithmetic.
func tickmgrHourIndex(tick int) int {
	return (tick - 1) / 60
}

// isWorkingHours reports whether tickOfDay falls within person's shift, per
// engine.py's is_within_work_hours check.
func isWorkingHours(person domain.Persona, tickOfDay int) bool {
	if person.WorkStartTick == 0 && person.WorkEndTick == 0 {
		return true
	}
	return tickOfDayWithin(person.WorkStartTick, person.WorkEndTick, tickOfDay)
}

// shouldPlanThisTick implements the planning-trigger disjunction:
// engine.py:1036's `should_plan = bool(incoming) or bool(adjustments) or
// reason != "auto" or (tick_of_day == 0)`. A persona plans this tick iff
// their drained inbox was non-empty, an event produced planning guidance
// for them, the advance was not an unattended auto-tick, or it's the first
// tick of their day.
func shouldPlanThisTick(incoming []domain.InboundMessage, adjustments []string, reason string, tickOfDay int) bool {
	return len(incoming) > 0 || len(adjustments) > 0 || reason != "auto" || tickOfDay == 0
}

// requeueForLater re-persists drained messages and turns each adjustment
// note into a "pending adjustment" reminder message, so planning guidance
// generated this tick is not lost when the persona isn't planned right now
// (off hours, or the per-minute planning cap was hit). Mirrors engine.py's
// off-hours requeue path (engine.py:1008-1016).
func (e *Engine) requeueForLater(person domain.Persona, tick int, incoming []domain.InboundMessage, adjustments []string) {
	for _, msg := range incoming {
		if _, err := e.runtime.QueueMessage(msg); err != nil {
			e.logger.Printf("engine: requeue message for %s failed (non-fatal): %v", person.Name, err)
		}
	}
	for _, note := range adjustments {
		reminder := domain.InboundMessage{
			SenderID: 0, SenderName: "Simulation Manager",
			Subject: "Pending adjustment", Summary: note, ActionItem: note,
			MessageType: domain.MessageTypeEvent, Channel: domain.ChannelSystem,
			Tick: tick, RecipientID: person.ID,
		}
		if _, err := e.runtime.QueueMessage(reminder); err != nil {
			e.logger.Printf("engine: queue pending-adjustment reminder for %s failed (non-fatal): %v", person.Name, err)
		}
	}
}

// foldIncomingIntoAdjustments folds a persona's drained inbox into their
// hourly-planning adjustments and sends a chat acknowledgement back to each
// message's sender, re-queuing that ack as an "ack" InboundMessage for the
// sender's own next planning pass. Mirrors engine.py:1050-1107: an "ack"
// message becomes a planning note about the sender's confirmation, an
// action item becomes a planning note about the request, and every
// non-system sender gets an acknowledgement DM.
func (e *Engine) foldIncomingIntoAdjustments(ctx context.Context, person domain.Persona, roster []domain.Persona, incoming []domain.InboundMessage, adjustments []string, tick int, sentAt time.Time, chatsSent *int) []string {
	for _, msg := range incoming {
		if msg.MessageType == domain.MessageTypeAck {
			adjustments = append(adjustments, fmt.Sprintf("Acknowledgement from %s: %s", msg.SenderName, msg.Summary))
			continue
		}
		if msg.ActionItem != "" {
			adjustments = append(adjustments, fmt.Sprintf("Handle request from %s: %s", msg.SenderName, msg.ActionItem))
		}

		sender, ok := findPersonByID(roster, msg.SenderID)
		if !ok {
			continue
		}
		ackPhrase := msg.ActionItem
		if ackPhrase == "" {
			ackPhrase = msg.Summary
		}
		ackBody := e.comm.SendAck(ctx, toCommPerson(person), toCommPerson(sender), ackPhrase, tick, sentAt)
		if ackBody == "" {
			continue
		}
		*chatsSent++
		ackMsg := domain.InboundMessage{
			SenderID: person.ID, SenderName: person.Name,
			Subject: fmt.Sprintf("Acknowledgement from %s", person.Name), Summary: ackBody,
			MessageType: domain.MessageTypeAck, Channel: domain.ChannelChat,
			Tick: tick, RecipientID: sender.ID,
		}
		if _, err := e.runtime.QueueMessage(ackMsg); err != nil {
			e.logger.Printf("engine: queue ack for %s failed (non-fatal): %v", sender.Name, err)
		}
	}
	return adjustments
}

func findPersonByID(roster []domain.Persona, id int) (domain.Persona, bool) {
	for _, p := range roster {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Persona{}, false
}

func tickOfDayWithin(start, end, tickOfDay int) bool {
	if start == end {
		return true
	}
	if start < end {
		return tickOfDay >= start && tickOfDay < end
	}
	return tickOfDay >= start || tickOfDay < end
}

func planReason(person domain.Persona, tick, tickOfDay int, hasAdjustments bool) string {
	if hasAdjustments {
		return "event_adjustment"
	}
	if tickOfDay == maxInt(0, person.WorkStartTick) {
		return "shift_start"
	}
	return "scheduled"
}

func (e *Engine) modelHintValue() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modelHint
}

func (e *Engine) statusOverrideMap() (map[int]event.StatusOverride, error) {
	overrides, err := e.store.ListStatusOverrides()
	if err != nil {
		return nil, fmt.Errorf("engine: list status overrides: %w", err)
	}
	out := make(map[int]event.StatusOverride, len(overrides))
	for _, o := range overrides {
		out[o.WorkerID] = event.StatusOverride{Status: o.Status, UntilTick: o.UntilTick}
	}
	return out, nil
}

// storeExchange adapts Engine's Store to event.ExchangeLogger.
func (e *Engine) storeExchange() exchangeLoggerAdapter {
	return exchangeLoggerAdapter{e.store}
}

type exchangeLoggerAdapter struct{ store Store }

func (a exchangeLoggerAdapter) LogExchange(ex domain.WorkerExchangeLog) error {
	return a.store.LogExchange(ex)
}

// planningContext resolves the project and daily plan text a persona should
// plan against this tick, ensuring the daily plan exists (generating one if
// missing), and returns whether the persona has an active project this
// week plus the full roster of other active project names for
// multi-project-awareness in hourly planning.
func (e *Engine) planningContext(ctx context.Context, person domain.Persona, week, dayIndex int) (projectText, dailyText string, active bool, allActive []string, err error) {
	projects, err := e.project.GetActiveProjectsForPerson(person.ID, week)
	if err != nil {
		return "", "", false, nil, err
	}
	if len(projects) == 0 {
		return "", "", false, nil, nil
	}
	primary := projects[0]
	for _, p := range projects {
		allActive = append(allActive, p.ProjectName)
	}

	schedule, _ := e.store.ListScheduleBlocksForPersonDay(person.ID, dayIndex)
	pp := toPlannerPerson(person, schedule)
	daily, err := e.planner.EnsureDailyPlan(ctx, pp, dayIndex, primary.Plan, primary.DurationWeeks, nil, e.modelHintValue())
	if err != nil {
		return "", "", false, nil, err
	}
	return primary.Plan, daily, true, allActive, nil
}

func (e *Engine) projectPlanTextForPerson(person domain.Persona, week int) (string, bool) {
	p, ok, err := e.project.GetActiveProjectForPerson(person.ID, week)
	if err != nil || !ok {
		return "", false
	}
	return p.Plan, true
}

func (e *Engine) activeProjectIDsForPerson(personID, week int) []int {
	projects, err := e.project.GetActiveProjectsForPerson(personID, week)
	if err != nil {
		return nil
	}
	ids := make([]int, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}

func (e *Engine) projectChatRoomSlug(projectID int) (string, bool) {
	slug, ok, err := e.project.GetActiveProjectChatRoom(projectID)
	if err != nil {
		return "", false
	}
	return slug, ok
}

// fallbackDispatch sends a status update when a tick's planning pass
// scheduled no explicit comm, per spec.md §4.8 Phase 3.
func (e *Engine) fallbackDispatch(ctx context.Context, person comm.Person, roster []comm.Person, tick int, domainPerson domain.Persona, activeRoster []domain.Persona, deps comm.DispatchDeps) (int, int) {
	week := e.currentWeek(tick)
	recipients := selectCollaborators(domainPerson, activeRoster)
	commRecipients := make([]comm.Person, 0, len(recipients))
	for _, r := range recipients {
		commRecipients = append(commRecipients, toCommPerson(r))
	}

	_, dailyText, active, _, err := e.planningContext(ctx, domainPerson, week, e.tick.DayIndex(tick))
	if err != nil || !active {
		return 0, 0
	}
	hourIndex := tickmgrHourIndex(tick)
	summary, _ := e.planner.GenerateHourlySummary(ctx, toPlannerPerson(domainPerson, nil), hourIndex, e.modelHintValue())

	projectName := ""
	if projects, err := e.project.GetActiveProjectsForPerson(domainPerson.ID, week); err == nil && len(projects) > 0 {
		projectName = projects[0].ProjectName
	}

	return e.comm.DispatchFallback(ctx, person, roster, tick, comm.FallbackInput{
		Recipients: commRecipients, ProjectName: projectName,
		DailySummary: dailyText, HourlySummary: summary.Content, ActionItem: "status update",
		SimManagerEmail: e.cfg.SimManagerEmail, SimManagerHandle: e.cfg.SimManagerHandle,
	}, deps)
}
