package engine

import (
	"fmt"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// GenerateSimulationReport builds a read-only rollup of the run up to
// upToTick: persona/project counts, total exchange volume since the start
// of the run, and upToTick itself as the ticks advanced. When persist is true the
// report is also inserted into the simulation_reports table, per
// spec.md §4.8's end-of-run / stop-time report.
func (e *Engine) GenerateSimulationReport(upToTick int, persist bool) (domain.SimulationReport, error) {
	personas, err := e.store.ListPersonas()
	if err != nil {
		return domain.SimulationReport{}, fmt.Errorf("engine: report list personas: %w", err)
	}
	projects, err := e.project.ListAllProjects()
	if err != nil {
		return domain.SimulationReport{}, fmt.Errorf("engine: report list projects: %w", err)
	}
	emails, chats, err := e.store.CountExchangesSince(0)
	if err != nil {
		return domain.SimulationReport{}, fmt.Errorf("engine: report count exchanges: %w", err)
	}

	report := domain.SimulationReport{
		AsOfTick:      upToTick,
		PersonaCount:  len(personas),
		ProjectCount:  len(projects),
		EmailsSent:    emails,
		ChatsSent:     chats,
		TicksAdvanced: upToTick,
	}

	if persist {
		if err := e.store.InsertSimulationReport(report); err != nil {
			return domain.SimulationReport{}, fmt.Errorf("engine: report insert: %w", err)
		}
	}
	return report, nil
}

// ReplayEvent is one entry in a replay timeline, mirroring an accepted send
// from the exchange log.
type ReplayEvent struct {
	Tick        int
	SenderID    int
	RecipientID int
	Channel     domain.Channel
	Subject     string
	Body        string
	SentAt      time.Time
}

// Replay returns every exchange-log entry up to and including the tick
// whose sim-datetime matches upToTick, oldest first. A request for a tick
// beyond the simulation's current maximum is clamped, per
// original_source/.../replay_manager.py's bounds handling.
func (e *Engine) Replay(upToTick int) ([]ReplayEvent, error) {
	maxTick, err := e.store.MaxExchangeTick()
	if err != nil {
		return nil, fmt.Errorf("engine: replay max tick: %w", err)
	}
	if upToTick > maxTick {
		upToTick = maxTick
	}
	if upToTick < 0 {
		upToTick = 0
	}

	cutoff := e.tick.SimDatetimeForTick(upToTick)
	rows, err := e.store.ListExchangesForReplay(cutoff)
	if err != nil {
		return nil, fmt.Errorf("engine: replay list exchanges: %w", err)
	}

	out := make([]ReplayEvent, len(rows))
	for i, r := range rows {
		out[i] = ReplayEvent{
			Tick: r.Tick, SenderID: r.SenderID, RecipientID: r.RecipientID,
			Channel: r.Channel, Subject: r.Subject, Body: r.Body, SentAt: r.SentAt,
		}
	}
	return out, nil
}

// Rewind stops auto-tick and discards every derived record generated after
// cutoffTick (worker plans, hourly summaries, daily reports, exchange log,
// tick log, events), then rewrites current_tick to cutoffTick, per
// original_source/.../replay_manager.py's rewind path. cutoffTick is
// clamped to the simulation's current tick.
func (e *Engine) Rewind(cutoffTick int) (State, error) {
	if err := e.tick.StopAutoTick(2 * time.Second); err != nil {
		e.logger.Printf("engine: rewind stop auto-tick: %v", err)
	}
	e.advanceMu.Lock()
	defer e.advanceMu.Unlock()

	st, err := e.store.GetSimulationState()
	if err != nil {
		return State{}, fmt.Errorf("engine: rewind get state: %w", err)
	}
	if cutoffTick < 0 {
		cutoffTick = 0
	}
	if cutoffTick > st.CurrentTick {
		cutoffTick = st.CurrentTick
	}

	cutoffTime := e.tick.SimDatetimeForTick(cutoffTick)
	dayIndex := e.tick.DayIndex(cutoffTick)
	hourIndex := tickmgrHourIndex(cutoffTick)

	if err := e.store.DeleteWorkerPlansAfter(cutoffTick); err != nil {
		return State{}, fmt.Errorf("engine: rewind worker plans: %w", err)
	}
	if err := e.store.DeleteHourlySummariesAfter(hourIndex); err != nil {
		return State{}, fmt.Errorf("engine: rewind hourly summaries: %w", err)
	}
	if err := e.store.DeleteDailyReportsAfter(dayIndex); err != nil {
		return State{}, fmt.Errorf("engine: rewind daily reports: %w", err)
	}
	if err := e.store.DeleteExchangeLogAfter(cutoffTime); err != nil {
		return State{}, fmt.Errorf("engine: rewind exchange log: %w", err)
	}
	if err := e.store.DeleteTickLogAfter(cutoffTick); err != nil {
		return State{}, fmt.Errorf("engine: rewind tick log: %w", err)
	}
	if err := e.store.DeleteEventsAfter(cutoffTick); err != nil {
		return State{}, fmt.Errorf("engine: rewind events: %w", err)
	}
	if err := e.store.SetCurrentTick(cutoffTick); err != nil {
		return State{}, fmt.Errorf("engine: rewind set tick: %w", err)
	}

	return e.GetState()
}
