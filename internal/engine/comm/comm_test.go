package comm

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
)

type fakeEmailGateway struct {
	sent []gateway.SendEmailRequest
	id   int
}

func (f *fakeEmailGateway) EnsureMailbox(ctx context.Context, address, displayName string) error {
	return nil
}

func (f *fakeEmailGateway) SendEmail(ctx context.Context, req gateway.SendEmailRequest) (string, error) {
	f.sent = append(f.sent, req)
	f.id++
	return "email-1", nil
}

type fakeChatGateway struct {
	dms   []gateway.SendDMRequest
	rooms []gateway.SendRoomMessageRequest
}

func (f *fakeChatGateway) EnsureUser(ctx context.Context, handle, displayName string) error { return nil }
func (f *fakeChatGateway) SendDM(ctx context.Context, req gateway.SendDMRequest) error {
	f.dms = append(f.dms, req)
	return nil
}
func (f *fakeChatGateway) CreateRoom(ctx context.Context, req gateway.CreateRoomRequest) (string, error) {
	return req.Slug, nil
}
func (f *fakeChatGateway) SendRoomMessage(ctx context.Context, slug string, req gateway.SendRoomMessageRequest) error {
	f.rooms = append(f.rooms, req)
	return nil
}

type fakeExchangeLogger struct {
	logged []domain.WorkerExchangeLog
}

func (f *fakeExchangeLogger) LogExchange(e domain.WorkerExchangeLog) error {
	f.logged = append(f.logged, e)
	return nil
}

func testRoster() []Person {
	return []Person{
		{ID: 1, Name: "Ada Lovelace", Role: "Engineering Manager", EmailAddress: "ada@example.com", ChatHandle: "ada", IsDepartmentHead: true},
		{ID: 2, Name: "Grace Hopper", Role: "Developer", EmailAddress: "grace@example.com", ChatHandle: "grace"},
		{ID: 3, Name: "Ida Rhodes", Role: "Designer", EmailAddress: "ida@example.com", ChatHandle: "ida"},
	}
}

func testDeps() DispatchDeps {
	return DispatchDeps{
		SimDatetimeForTick: func(tick int) time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		CurrentWeek:        func() int { return 1 },
		ActiveProjectIDs:   func(personID, week int) []int { return []int{100} },
		ProjectChatRoom:    func(projectID int) (string, bool) { return "proj-100", true },
	}
}

func newTestHub(t *testing.T, emailGW gateway.EmailGateway, chatGW gateway.ChatGateway, exchange ExchangeLogger) *Hub {
	t.Helper()
	loc, err := locale.New("en", "")
	if err != nil {
		t.Fatalf("locale.New: %v", err)
	}
	return New(emailGW, chatGW, exchange, loc, 10, nil)
}

func TestParsePlanTextEmailLine(t *testing.T) {
	// hoursPerDay=8, currentTick=1 -> tickOfDay=0, baseTick=1.
	// "09:00" -> minutes=540, scheduledTickOfDay = round(540*8/1440) = round(3) = 3.
	actions := ParsePlanText("Email at 09:00 to grace@example.com: Status | All good here.", 1, 8)
	entries, ok := actions[4] // baseTick(1) + 3
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one action at tick 4, got %+v", actions)
	}
	a := entries[0]
	if a.Channel != domain.ChannelEmail || a.Target != "grace@example.com" || a.Subject != "Status" || a.Body != "All good here." {
		t.Errorf("parsed action = %+v", a)
	}
}

func TestParsePlanTextDropsPastTick(t *testing.T) {
	// currentTick=5 -> tickOfDay=4; "00:00" -> scheduledTickOfDay=0, which is <= 4, dropped.
	actions := ParsePlanText("Chat at 00:00 to grace: hi", 5, 8)
	if len(actions) != 0 {
		t.Errorf("expected no actions for a past tick-of-day, got %+v", actions)
	}
}

func TestParsePlanTextReplyLine(t *testing.T) {
	actions := ParsePlanText("Reply at 09:00 to [email-42] cc ida: Re: Status | Thanks!", 1, 8)
	var found bool
	for _, entries := range actions {
		for _, a := range entries {
			if a.ReplyToEmail == "email-42" {
				found = true
				if len(a.CC) != 1 || a.CC[0] != "ida" {
					t.Errorf("CC = %v, want [ida]", a.CC)
				}
			}
		}
	}
	if !found {
		t.Error("expected a parsed reply directive")
	}
}

func TestParsePlanTextChatLine(t *testing.T) {
	actions := ParsePlanText("Chat at 09:00 with team: standup in 5", 1, 8)
	var found bool
	for _, entries := range actions {
		for _, a := range entries {
			if a.Channel == domain.ChannelChat && a.Target == "team" && a.Body == "standup in 5" {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected a parsed group chat directive")
	}
}

func TestDispatchEmailSendsAndRecordsRecentEmail(t *testing.T) {
	emailGW := &fakeEmailGateway{}
	exchange := &fakeExchangeLogger{}
	hub := newTestHub(t, emailGW, &fakeChatGateway{}, exchange)
	roster := testRoster()

	hub.ScheduleFromHourlyPlan(1, "Email at 09:00 to grace@example.com: Status | All good here.", 1, 8)
	emails, chats := hub.Dispatch(context.Background(), roster[0], 4, roster, testDeps())

	if emails != 1 || chats != 0 {
		t.Fatalf("emails=%d chats=%d, want 1,0", emails, chats)
	}
	if len(emailGW.sent) != 1 {
		t.Fatalf("gateway saw %d sends, want 1", len(emailGW.sent))
	}
	if emailGW.sent[0].To[0] != "grace@example.com" {
		t.Errorf("To = %v, want grace@example.com", emailGW.sent[0].To)
	}
	if len(exchange.logged) != 1 {
		t.Errorf("exchange log entries = %d, want 1", len(exchange.logged))
	}

	recent := hub.RecentEmailsForPerson(1, 10)
	if len(recent) != 1 || recent[0].To != "grace@example.com" {
		t.Errorf("sender recent emails = %+v", recent)
	}
	recentRecipient := hub.RecentEmailsForPerson(2, 10)
	if len(recentRecipient) != 1 {
		t.Errorf("recipient recent emails = %+v, want 1 entry", recentRecipient)
	}
}

func TestDispatchEmailSuggestsCCWhenNoneExplicit(t *testing.T) {
	emailGW := &fakeEmailGateway{}
	hub := newTestHub(t, emailGW, &fakeChatGateway{}, nil)
	roster := testRoster() // sender will be Grace (developer), dept head is Ada

	hub.ScheduleFromHourlyPlan(2, "Email at 09:00 to ida@example.com: Design review | Please take a look.", 1, 8)
	hub.Dispatch(context.Background(), roster[1], 4, roster, testDeps())

	if len(emailGW.sent) != 1 {
		t.Fatalf("expected one email sent, got %d", len(emailGW.sent))
	}
	if len(emailGW.sent[0].CC) == 0 {
		t.Error("expected a suggested CC when none was explicit")
	}
}

func TestDispatchRejectsHallucinatedEmail(t *testing.T) {
	emailGW := &fakeEmailGateway{}
	hub := newTestHub(t, emailGW, &fakeChatGateway{}, nil)
	roster := testRoster()

	hub.ScheduleFromHourlyPlan(1, "Email at 09:00 to attacker@evil.example: Subject | Body", 1, 8)
	emails, _ := hub.Dispatch(context.Background(), roster[0], 4, roster, testDeps())

	if emails != 0 || len(emailGW.sent) != 0 {
		t.Error("email to an address outside the roster and allow-list should be rejected")
	}
}

func TestDispatchGroupChatRoutesToProjectRoom(t *testing.T) {
	chatGW := &fakeChatGateway{}
	hub := newTestHub(t, &fakeEmailGateway{}, chatGW, nil)
	roster := testRoster()

	hub.ScheduleFromHourlyPlan(1, "Chat at 09:00 with team: standup in 5", 1, 8)
	_, chats := hub.Dispatch(context.Background(), roster[0], 4, roster, testDeps())

	if chats != 1 || len(chatGW.rooms) != 1 {
		t.Fatalf("chats=%d rooms=%d, want 1,1", chats, len(chatGW.rooms))
	}
	if len(chatGW.dms) != 0 {
		t.Error("group chat should not also send a DM")
	}
}

func TestDispatchDMMirroringGuard(t *testing.T) {
	chatGW := &fakeChatGateway{}
	hub := newTestHub(t, &fakeEmailGateway{}, chatGW, nil)
	roster := testRoster() // ada < grace lexicographically

	// ada -> grace: ada's handle is smaller, so this send is permitted.
	hub.ScheduleFromHourlyPlan(1, "Chat at 09:00 to grace: hello", 1, 8)
	_, chats := hub.Dispatch(context.Background(), roster[0], 4, roster, testDeps())
	if chats != 1 {
		t.Fatalf("ada->grace chats=%d, want 1 (smaller handle may send)", chats)
	}

	// grace -> ada: grace's handle is larger, so this direction is suppressed.
	hub.ScheduleFromHourlyPlan(2, "Chat at 09:00 to ada: hello back", 1, 8)
	_, chats2 := hub.Dispatch(context.Background(), roster[1], 4, roster, testDeps())
	if chats2 != 0 {
		t.Errorf("grace->ada chats=%d, want 0 (mirrored DM direction suppressed)", chats2)
	}
}

func TestCooldownBlocksRepeatSendWithinWindow(t *testing.T) {
	emailGW := &fakeEmailGateway{}
	hub := newTestHub(t, emailGW, &fakeChatGateway{}, nil)
	roster := testRoster()

	hub.ScheduleFromHourlyPlan(1, "Email at 09:00 to grace@example.com: Status | first", 1, 8)
	hub.Dispatch(context.Background(), roster[0], 4, roster, testDeps())

	// schedule a second, different-body email to the same recipient 2 ticks later (within the 10-tick cooldown)
	// 15:00 -> minutes=900, scheduledTickOfDay = round(900*8/1440) = 5 -> tick 1+5 = 6.
	hub.ScheduleFromHourlyPlan(1, "Email at 15:00 to grace@example.com: Status | second", 1, 8)
	hub.Dispatch(context.Background(), roster[0], 6, roster, testDeps())

	if len(emailGW.sent) != 1 {
		t.Errorf("sent %d emails, want 1 (second blocked by cooldown)", len(emailGW.sent))
	}
}

func TestReplyThreadingUsesOriginalThreadAndSender(t *testing.T) {
	emailGW := &fakeEmailGateway{}
	hub := newTestHub(t, emailGW, &fakeChatGateway{}, nil)
	roster := testRoster()

	// Ada sends an initial email to Grace, populating both recent-email rings.
	hub.ScheduleFromHourlyPlan(1, "Email at 09:00 to grace@example.com: Kickoff | Let's get started.", 1, 8)
	hub.Dispatch(context.Background(), roster[0], 4, roster, testDeps())
	firstThread := emailGW.sent[0].ThreadID

	// Grace replies using the email-id recorded in her recent-emails ring.
	hub.ScheduleFromHourlyPlan(2, "Reply at 09:00 to [email-1]: Re: Kickoff | Sounds good.", 1, 8)
	emails, _ := hub.Dispatch(context.Background(), roster[1], 4, roster, testDeps())

	if emails != 1 {
		t.Fatalf("expected the reply to send, got emails=%d", emails)
	}
	if len(emailGW.sent) != 2 {
		t.Fatalf("expected 2 emails total, got %d", len(emailGW.sent))
	}
	if emailGW.sent[1].ThreadID != firstThread {
		t.Errorf("reply thread id = %q, want %q", emailGW.sent[1].ThreadID, firstThread)
	}
	if emailGW.sent[1].To[0] != "ada@example.com" {
		t.Errorf("reply target = %v, want ada@example.com", emailGW.sent[1].To)
	}
}

func TestParticipationBalancerThrottlesHighVolumeSender(t *testing.T) {
	b := NewParticipationBalancer(true)
	for i := 0; i < 20; i++ {
		b.RecordMessage(1, 0, "email")
	}
	b.RecordMessage(2, 0, "email")
	if got := b.SendProbability(1, 0, 2); got != 0.1 {
		t.Errorf("throttled probability = %v, want 0.1", got)
	}
}

func TestParticipationBalancerBoostsLowVolumeSender(t *testing.T) {
	b := NewParticipationBalancer(true)
	for i := 0; i < 20; i++ {
		b.RecordMessage(1, 0, "email")
	}
	b.RecordMessage(2, 0, "email")
	if got := b.SendProbability(2, 0, 2); got != 0.9 {
		t.Errorf("boosted probability = %v, want 0.9", got)
	}
}

func TestParticipationBalancerDisabledAlwaysOne(t *testing.T) {
	b := NewParticipationBalancer(false)
	b.RecordMessage(1, 0, "email")
	if got := b.SendProbability(1, 0, 1); got != 1.0 {
		t.Errorf("disabled probability = %v, want 1.0", got)
	}
}

func TestShouldGenerateFallbackIsDeterministic(t *testing.T) {
	b := NewParticipationBalancer(true)
	rng1 := rand.New(rand.NewSource(7))
	rng2 := rand.New(rand.NewSource(7))
	if b.ShouldGenerateFallback(1, 0, 1, rng1) != b.ShouldGenerateFallback(1, 0, 1, rng2) {
		t.Error("same seed should produce the same fallback decision")
	}
}
