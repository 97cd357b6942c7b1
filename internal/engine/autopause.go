package engine

import (
	"context"
	"fmt"
	"time"
)

// AutoPauseStatus mirrors lifecycle.py's get_auto_pause_status response.
type AutoPauseStatus struct {
	Enabled             bool
	ShouldPause         bool
	ActiveProjectsCount int
	FutureProjectsCount int
	CurrentWeek         int
	CurrentTick         int
	CurrentDay          int
	Reason              string
}

// StartAutoTicks launches the background auto-tick loop, which calls
// Advance once per interval until Stop, an advance error, or (when
// auto-pause is enabled) the auto-pause supervisor reports no active or
// upcoming work.
func (e *Engine) StartAutoTicks(ctx context.Context) error {
	e.mu.Lock()
	interval := e.tickInterval
	e.mu.Unlock()

	return e.tick.StartAutoTick(ctx, interval, func(ctx context.Context, reason string) error {
		_, err := e.Advance(ctx, 1, reason)
		return err
	}, func() bool {
		if !e.GetAutoPauseEnabled() {
			return true
		}
		st, err := e.store.GetSimulationState()
		if err != nil {
			return true
		}
		status, err := e.GetAutoPauseStatus(st.CurrentTick)
		if err != nil {
			return true
		}
		return !status.ShouldPause
	})
}

// StopAutoTicks halts the background loop without generating a report.
func (e *Engine) StopAutoTicks() (State, error) {
	if err := e.tick.StopAutoTick(2 * time.Second); err != nil {
		e.logger.Printf("engine: stop auto ticks: %v", err)
	}
	return e.GetState()
}

// SetAutoPause toggles the auto-pause supervisor.
func (e *Engine) SetAutoPause(enabled bool) AutoPauseStatus {
	e.mu.Lock()
	e.autoPauseEnabled = enabled
	e.mu.Unlock()
	st, err := e.store.GetSimulationState()
	if err != nil {
		return AutoPauseStatus{Enabled: enabled}
	}
	status, err := e.GetAutoPauseStatus(st.CurrentTick)
	if err != nil {
		return AutoPauseStatus{Enabled: enabled}
	}
	return status
}

// GetAutoPauseEnabled reports whether the auto-pause supervisor is active.
func (e *Engine) GetAutoPauseEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoPauseEnabled
}

// GetAutoPauseStatus computes whether the simulation should pause because
// no project is active this week and none is scheduled to start later,
// per lifecycle.py's get_auto_pause_status.
func (e *Engine) GetAutoPauseStatus(currentTick int) (AutoPauseStatus, error) {
	if !e.GetAutoPauseEnabled() {
		return AutoPauseStatus{
			Enabled: false, CurrentTick: currentTick,
			Reason: "auto-pause disabled",
		}, nil
	}

	day := 0
	if currentTick > 0 {
		day = e.tick.DayIndex(currentTick)
	}
	week := e.currentWeek(currentTick)

	active, future, err := e.project.CountActiveAndFutureProjects(week)
	if err != nil {
		return AutoPauseStatus{}, fmt.Errorf("engine: auto-pause status: %w", err)
	}
	shouldPause := active == 0 && future == 0

	var reason string
	switch {
	case shouldPause:
		reason = fmt.Sprintf("no active projects in week %d and none scheduled to start later", week)
	case active == 0:
		reason = fmt.Sprintf("no active projects in week %d, but %d project(s) start later", week, future)
	default:
		reason = fmt.Sprintf("%d project(s) active in week %d", active, week)
	}

	return AutoPauseStatus{
		Enabled: true, ShouldPause: shouldPause,
		ActiveProjectsCount: active, FutureProjectsCount: future,
		CurrentWeek: week, CurrentTick: currentTick, CurrentDay: day,
		Reason: reason,
	}, nil
}

// SetTickInterval sets the auto-tick interval; zero means max-speed.
func (e *Engine) SetTickInterval(seconds int) (string, error) {
	if seconds < 0 {
		return "", fmt.Errorf("engine: tick interval must be >= 0")
	}
	e.mu.Lock()
	e.tickInterval = time.Duration(seconds) * time.Second
	e.mu.Unlock()
	if seconds == 0 {
		return "tick interval set to 0s (max speed)", nil
	}
	return fmt.Sprintf("tick interval set to %ds", seconds), nil
}

// GetTickInterval returns the current auto-tick interval in seconds.
func (e *Engine) GetTickInterval() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int(e.tickInterval / time.Second)
}
