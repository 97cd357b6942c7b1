package engine

import (
	"fmt"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// InjectEvent records a custom event against the running simulation,
// delegating to the Event System. Grounded on engine.py's inject_event,
// which is itself a one-line delegation to core/event_system.py.
func (e *Engine) InjectEvent(ev domain.Event) (domain.Event, error) {
	return e.events.InjectEvent(ev)
}

// ListEvents lists stored events, optionally filtered by project or target
// persona, delegating to the Event System.
func (e *Engine) ListEvents(projectID, targetID *int) ([]domain.Event, error) {
	return e.events.ListEvents(projectID, targetID)
}

// SetStatusOverride marks a persona unavailable (e.g. vacation, sick leave)
// through untilTick, per app.py's set_status_override admin endpoint.
func (e *Engine) SetStatusOverride(workerID int, status string, untilTick int, reason string) error {
	if err := e.store.SetStatusOverride(workerID, status, untilTick, reason); err != nil {
		return fmt.Errorf("engine: set status override: %w", err)
	}
	return nil
}

// ClearStatusOverride removes a persona's status override, per app.py's
// clear_status_override admin endpoint.
func (e *Engine) ClearStatusOverride(workerID int) error {
	if err := e.store.ClearStatusOverride(workerID); err != nil {
		return fmt.Errorf("engine: clear status override: %w", err)
	}
	return nil
}

// ListStatusOverrides returns every active status override.
func (e *Engine) ListStatusOverrides() ([]domain.WorkerStatusOverride, error) {
	overrides, err := e.store.ListStatusOverrides()
	if err != nil {
		return nil, fmt.Errorf("engine: list status overrides: %w", err)
	}
	return overrides, nil
}
