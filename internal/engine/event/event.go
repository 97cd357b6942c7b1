// Package event is the Event System (C5): write-once event injection and
// storage, plus per-tick random event generation (sick leave, client feature
// requests) and event-to-adjustment conversion for worker planning.
// Grounded directly on
// original_source/.../sim_manager/core/event_system.py, translated into the
// teacher's idiom of small injected-dependency structs
// (internal/app/orchestrator.go's AssignmentStrategy style) rather than the
// original's positional callback arguments.
package event

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
)

// Store is the subset of the State Store the Event System needs.
type Store interface {
	InsertEvent(e domain.Event) (domain.Event, error)
	ListEvents(projectID *int, targetID *int) ([]domain.Event, error)
}

// StatusSetter applies a status override; satisfied by internal/engine's
// status-override store wrapper.
type StatusSetter interface {
	SetStatusOverride(workerID int, status string, untilTick int, reason string) error
}

// MessageQueue queues an inbound message for a persona's runtime inbox.
type MessageQueue interface {
	QueueMessage(m domain.InboundMessage) (domain.InboundMessage, error)
}

// ExchangeLogger records an outbound send for the replay/audit log.
type ExchangeLogger interface {
	LogExchange(e domain.WorkerExchangeLog) error
}

// StatusOverride is a read view of a worker's current override, as seen by
// ProcessEventsForTick. Status is empty if no override is active.
type StatusOverride struct {
	Status    string
	UntilTick int
}

// ProcessResult is the outcome of one ProcessEventsForTick call.
type ProcessResult struct {
	// Adjustments maps person ID to planning-guidance strings generated by
	// events fired this tick.
	Adjustments map[int][]string
	// Immediate maps person ID to inbox messages generated this tick (a
	// subset of what was queued via MessageQueue, returned for callers that
	// want to react synchronously, e.g. the hourly planner).
	Immediate map[int][]domain.InboundMessage
}

// System is the Event System.
type System struct {
	store  Store
	rng    *rand.Rand
	locale *locale.Manager
}

// New creates an Event System seeded deterministically from seed. Using
// math/rand/v1's *rand.Rand (rather than the package-level global) isolates
// the simulation's randomness from any other part of the process, matching
// the original source's own random.Random(seed) instance.
func New(store Store, loc *locale.Manager, seed int64) *System {
	return &System{store: store, rng: rand.New(rand.NewSource(seed)), locale: loc}
}

// InjectEvent stores a custom event, per spec.md §4.5.
func (s *System) InjectEvent(e domain.Event) (domain.Event, error) {
	stored, err := s.store.InsertEvent(e)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event: inject: %w", err)
	}
	return stored, nil
}

// ListEvents lists stored events, optionally filtered.
func (s *System) ListEvents(projectID, targetID *int) ([]domain.Event, error) {
	es, err := s.store.ListEvents(projectID, targetID)
	if err != nil {
		return nil, fmt.Errorf("event: list: %w", err)
	}
	return es, nil
}

// Person is the minimal persona projection ProcessEventsForTick needs.
type Person struct {
	ID               int
	Name             string
	EmailAddress     string
	IsDepartmentHead bool
}

// Deps bundles the external collaborators ProcessEventsForTick dispatches
// through; all fields are required.
type Deps struct {
	EmailGateway    gateway.EmailGateway
	SimManagerEmail string
	Queue           MessageQueue
	Exchange        ExchangeLogger
	StatusSetter    StatusSetter
}

// ProcessEventsForTick runs the per-tick random event generators (sick
// leave, client feature requests), mirroring event_system.py's
// process_events_for_tick exactly, including its tick-of-day boundary and
// probability constants. statusOverrides reflects overrides active at the
// start of this tick (before any this-tick change).
func (s *System) ProcessEventsForTick(ctx context.Context, tick int, people []Person, hoursPerDay int, statusOverrides map[int]StatusOverride, deps Deps) (ProcessResult, error) {
	result := ProcessResult{Adjustments: map[int][]string{}, Immediate: map[int][]domain.InboundMessage{}}
	if len(people) == 0 {
		return result, nil
	}

	h := hoursPerDay
	if h < 1 {
		h = 1
	}
	tickOfDay := mod(tick-1, h)

	// Sick leave: considered once per day around mid-morning (~10:00),
	// following the original source's integer floor-division constant
	// rather than spec.md's prose "round()" (original_source is
	// authoritative for this ambiguity, see DESIGN.md).
	sickLeaveTick := (60 * h) / 480
	if tickOfDay == sickLeaveTick && s.rng.Float64() < 0.05 {
		if err := s.maybeTriggerSickLeave(ctx, tick, people, h, statusOverrides, deps, &result); err != nil {
			return result, err
		}
	}

	// Client feature request: at most a few times per day, low probability.
	intervalTicks := (120 * h) / 480
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	if tickOfDay%intervalTicks == 0 && s.rng.Float64() < 0.10 {
		if err := s.maybeTriggerFeatureRequest(ctx, tick, people, deps, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (s *System) maybeTriggerSickLeave(ctx context.Context, tick int, people []Person, hoursPerDay int, statusOverrides map[int]StatusOverride, deps Deps, result *ProcessResult) error {
	var active []Person
	for _, p := range people {
		if ov, ok := statusOverrides[p.ID]; ok && ov.Status == "SickLeave" {
			continue
		}
		active = append(active, p)
	}
	if len(active) == 0 {
		return nil
	}
	target := active[s.rng.Intn(len(active))]
	untilTick := tick + hoursPerDay

	if err := deps.StatusSetter.SetStatusOverride(target.ID, "SickLeave", untilTick, fmt.Sprintf("Sick leave triggered at tick %d", tick)); err != nil {
		return fmt.Errorf("event: set sick leave override: %w", err)
	}

	restMsg := domain.InboundMessage{
		SenderID:    0,
		SenderName:  "Simulation Manager",
		Subject:     s.locale.GetText("rest_and_recover"),
		Summary:     s.locale.GetText("rest_and_recover_body"),
		ActionItem:  s.locale.GetText("rest_and_recover_action"),
		MessageType: domain.MessageTypeEvent,
		Channel:     domain.ChannelSystem,
		Tick:        tick,
		RecipientID: target.ID,
	}
	if err := s.queueAndRecord(deps.Queue, target.ID, restMsg, result); err != nil {
		return err
	}
	result.Adjustments[target.ID] = append(result.Adjustments[target.ID], "Rest and reschedule tasks due to sudden illness.")

	var head *Person
	for i := range people {
		if people[i].IsDepartmentHead && people[i].ID != target.ID {
			head = &people[i]
			break
		}
	}
	if head != nil {
		subject := s.locale.GetTemplate("coverage_needed", map[string]string{"name": target.Name})
		body := s.locale.GetTemplate("coverage_needed_body", map[string]string{"name": target.Name, "tick": fmt.Sprint(tick)})

		if _, err := deps.EmailGateway.SendEmail(ctx, gateway.SendEmailRequest{
			Sender: deps.SimManagerEmail, To: []string{head.EmailAddress}, Subject: subject, Body: body,
		}); err != nil {
			return fmt.Errorf("event: send coverage-needed email: %w", err)
		}
		if err := deps.Exchange.LogExchange(domain.WorkerExchangeLog{Tick: tick, SenderID: 0, RecipientID: head.ID, Channel: domain.ChannelEmail, Subject: subject, Body: body}); err != nil {
			return fmt.Errorf("event: log coverage-needed exchange: %w", err)
		}

		headMsg := domain.InboundMessage{
			SenderID: 0, SenderName: "Simulation Manager", Subject: subject, Summary: body,
			ActionItem: fmt.Sprintf("Coordinate cover for %s.", target.Name),
			MessageType: domain.MessageTypeEvent, Channel: domain.ChannelEmail, Tick: tick, RecipientID: head.ID,
		}
		if err := s.queueAndRecord(deps.Queue, head.ID, headMsg, result); err != nil {
			return err
		}
		result.Adjustments[head.ID] = append(result.Adjustments[head.ID], fmt.Sprintf("Coordinate cover while %s recovers.", target.Name))
	}

	if _, err := s.store.InsertEvent(domain.Event{Type: "sick_leave", TargetIDs: []int{target.ID}, AtTick: tick, Payload: map[string]any{"until_tick": untilTick}}); err != nil {
		return fmt.Errorf("event: record sick leave: %w", err)
	}
	return nil
}

func (s *System) maybeTriggerFeatureRequest(ctx context.Context, tick int, people []Person, deps Deps, result *ProcessResult) error {
	head := people[0]
	for _, p := range people {
		if p.IsDepartmentHead {
			head = p
			break
		}
	}

	features := s.locale.GetList("client_feature_requests")
	if len(features) == 0 {
		return nil
	}
	feature := features[s.rng.Intn(len(features))]
	subject := s.locale.GetTemplate("client_request_subject", map[string]string{"feature": feature})
	body := s.locale.GetTemplate("client_request_body", map[string]string{"feature": feature})
	actionItem := s.locale.GetTemplate("client_request_action", map[string]string{"feature": feature})

	headMsg := domain.InboundMessage{
		SenderID: 0, SenderName: "Simulation Manager", Subject: subject, Summary: body, ActionItem: actionItem,
		MessageType: domain.MessageTypeEvent, Channel: domain.ChannelEmail, Tick: tick, RecipientID: head.ID,
	}
	if err := s.queueAndRecord(deps.Queue, head.ID, headMsg, result); err != nil {
		return err
	}
	result.Adjustments[head.ID] = append(result.Adjustments[head.ID], fmt.Sprintf("Plan response to client request: %s.", feature))

	targets := []int{head.ID}
	var collaborators []Person
	for _, p := range people {
		if p.ID != head.ID {
			collaborators = append(collaborators, p)
		}
	}
	if len(collaborators) > 0 {
		partner := collaborators[s.rng.Intn(len(collaborators))]
		partnerMsg := domain.InboundMessage{
			SenderID: head.ID, SenderName: head.Name, Subject: subject,
			Summary:    s.locale.GetTemplate("partner_with", map[string]string{"name": head.Name, "feature": feature}),
			ActionItem: s.locale.GetTemplate("support_on", map[string]string{"name": head.Name, "feature": feature}),
			MessageType: domain.MessageTypeEvent, Channel: domain.ChannelChat, Tick: tick, RecipientID: partner.ID,
		}
		if err := s.queueAndRecord(deps.Queue, partner.ID, partnerMsg, result); err != nil {
			return err
		}
		result.Adjustments[partner.ID] = append(result.Adjustments[partner.ID], fmt.Sprintf("Partner with %s on client request: %s.", head.Name, feature))
		targets = append(targets, partner.ID)
	}
	if _, err := s.store.InsertEvent(domain.Event{Type: "client_feature_request", TargetIDs: targets, AtTick: tick, Payload: map[string]any{"feature": feature}}); err != nil {
		return fmt.Errorf("event: record feature request: %w", err)
	}
	return nil
}

func (s *System) queueAndRecord(queue MessageQueue, personID int, msg domain.InboundMessage, result *ProcessResult) error {
	queued, err := queue.QueueMessage(msg)
	if err != nil {
		return fmt.Errorf("event: queue message for %d: %w", personID, err)
	}
	result.Immediate[personID] = append(result.Immediate[personID], queued)
	return nil
}

// ConvertEventToAdjustments converts a stored event into planning-guidance
// strings for the given person, per spec.md §4.5.
func ConvertEventToAdjustments(e domain.Event) []string {
	var out []string
	switch e.Type {
	case "sick_leave":
		out = append(out, "Rest and reschedule tasks due to sudden illness.")
	case "client_feature_request":
		feature := "new feature"
		if v, ok := e.Payload["feature"].(string); ok {
			feature = v
		}
		out = append(out, fmt.Sprintf("Plan response to client request: %s.", feature))
	case "blocker":
		desc := "dependency issue"
		if v, ok := e.Payload["description"].(string); ok {
			desc = v
		}
		out = append(out, fmt.Sprintf("Address blocker: %s.", desc))
	case "meeting":
		topic := "team sync"
		if v, ok := e.Payload["topic"].(string); ok {
			topic = v
		}
		out = append(out, fmt.Sprintf("Attend meeting: %s.", topic))
	}
	return out
}

func mod(a, b int) int {
	if b <= 0 {
		return 0
	}
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
