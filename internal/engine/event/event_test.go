package event

import (
	"context"
	"testing"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
)

type fakeStore struct {
	nextID int
	events []domain.Event
}

func (f *fakeStore) InsertEvent(e domain.Event) (domain.Event, error) {
	f.nextID++
	e.ID = f.nextID
	f.events = append(f.events, e)
	return e, nil
}

func (f *fakeStore) ListEvents(projectID, targetID *int) ([]domain.Event, error) {
	return f.events, nil
}

type fakeStatusSetter struct {
	calls []string
}

func (f *fakeStatusSetter) SetStatusOverride(workerID int, status string, untilTick int, reason string) error {
	f.calls = append(f.calls, status)
	return nil
}

type fakeQueue struct {
	queued []domain.InboundMessage
}

func (f *fakeQueue) QueueMessage(m domain.InboundMessage) (domain.InboundMessage, error) {
	m.ID = len(f.queued) + 1
	f.queued = append(f.queued, m)
	return m, nil
}

type fakeExchange struct {
	logged []domain.WorkerExchangeLog
}

func (f *fakeExchange) LogExchange(e domain.WorkerExchangeLog) error {
	f.logged = append(f.logged, e)
	return nil
}

type fakeEmailGateway struct {
	sent []gateway.SendEmailRequest
}

func (f *fakeEmailGateway) EnsureMailbox(ctx context.Context, address, displayName string) error {
	return nil
}
func (f *fakeEmailGateway) SendEmail(ctx context.Context, req gateway.SendEmailRequest) (string, error) {
	f.sent = append(f.sent, req)
	return "msg-1", nil
}

func newLocaleManager(t *testing.T) *locale.Manager {
	t.Helper()
	m, err := locale.New("en", "")
	if err != nil {
		t.Fatalf("locale.New: %v", err)
	}
	return m
}

func TestInjectAndListEvents(t *testing.T) {
	store := &fakeStore{}
	sys := New(store, newLocaleManager(t), 1)

	stored, err := sys.InjectEvent(domain.Event{Type: "blocker", AtTick: 5, Payload: map[string]any{"description": "db down"}})
	if err != nil {
		t.Fatalf("InjectEvent: %v", err)
	}
	if stored.ID == 0 {
		t.Error("InjectEvent did not assign an id")
	}
	listed, err := sys.ListEvents(nil, nil)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d events, want 1", len(listed))
	}
}

func TestConvertEventToAdjustments(t *testing.T) {
	cases := []struct {
		event domain.Event
		want  string
	}{
		{domain.Event{Type: "sick_leave"}, "Rest and reschedule tasks due to sudden illness."},
		{domain.Event{Type: "client_feature_request", Payload: map[string]any{"feature": "dark mode"}}, "Plan response to client request: dark mode."},
		{domain.Event{Type: "blocker", Payload: map[string]any{"description": "api outage"}}, "Address blocker: api outage."},
		{domain.Event{Type: "meeting", Payload: map[string]any{"topic": "retro"}}, "Attend meeting: retro."},
	}
	for _, c := range cases {
		got := ConvertEventToAdjustments(c.event)
		if len(got) != 1 || got[0] != c.want {
			t.Errorf("ConvertEventToAdjustments(%q) = %v, want [%q]", c.event.Type, got, c.want)
		}
	}
}

func TestConvertEventToAdjustmentsUnknownType(t *testing.T) {
	got := ConvertEventToAdjustments(domain.Event{Type: "unknown"})
	if len(got) != 0 {
		t.Errorf("unknown event type produced adjustments: %v, want none", got)
	}
}

func TestProcessEventsForTickSickLeaveBoundary(t *testing.T) {
	store := &fakeStore{}
	// seed chosen so rng.Float64() < 0.05 is forced deterministically is not
	// guaranteed for an arbitrary seed; instead verify the boundary-tick gate
	// itself: outside the sick-leave tick-of-day, no sick leave fires
	// regardless of seed.
	sys := New(store, newLocaleManager(t), 42)
	people := []Person{{ID: 1, Name: "Ada", EmailAddress: "ada@example.com", IsDepartmentHead: true}}
	deps := Deps{
		EmailGateway:    &fakeEmailGateway{},
		SimManagerEmail: "sim@example.com",
		Queue:           &fakeQueue{},
		Exchange:        &fakeExchange{},
		StatusSetter:    &fakeStatusSetter{},
	}

	// hoursPerDay=8: sickLeaveTick = 60*8/480 = 1, featureRequestInterval = 120*8/480 = 2.
	// tick=4 gives tickOfDay=(4-1)%8=3, which matches neither boundary, so
	// neither rng gate is even evaluated — the assertion below is
	// deterministic regardless of seed.
	result, err := sys.ProcessEventsForTick(context.Background(), 4, people, 8, map[int]StatusOverride{}, deps)
	if err != nil {
		t.Fatalf("ProcessEventsForTick: %v", err)
	}
	if len(store.events) != 0 {
		t.Errorf("no events should fire off the sick-leave boundary tick, got %d", len(store.events))
	}
	_ = result
}

func TestProcessEventsForTickEmptyPeople(t *testing.T) {
	sys := New(&fakeStore{}, newLocaleManager(t), 1)
	deps := Deps{EmailGateway: &fakeEmailGateway{}, Queue: &fakeQueue{}, Exchange: &fakeExchange{}, StatusSetter: &fakeStatusSetter{}}
	result, err := sys.ProcessEventsForTick(context.Background(), 1, nil, 8, nil, deps)
	if err != nil {
		t.Fatalf("ProcessEventsForTick with no people: %v", err)
	}
	if len(result.Adjustments) != 0 || len(result.Immediate) != 0 {
		t.Errorf("expected empty result for no people, got %+v", result)
	}
}
