// Package comm is the Communication Hub (C7): parses scheduled-comm lines
// out of hourly plans, deduplicates and cooldown-limits sends, resolves
// targets (group rooms, emails, chat handles, names), maintains recent-email
// rings for reply threading, and dispatches at the target tick. Grounded
// near line-for-line on
// original_source/.../core/communication_hub.py, reshaped so the Hub holds
// no back-references to the Engine Coordinator — current-week, active-
// project, and chat-room lookups are passed in as closures (per spec.md
// §4.7's "cyclic ownership" note), keeping the dependency graph acyclic the
// way the teacher's orchestrator.go passes collaborator strategies as
// function values rather than interfaces back to itself.
package comm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
	"github.com/nemit0/virtualoffice-sim/internal/locale"
)

// groupKeywords are the reserved group-chat routing tokens, per spec.md §4.7.
var groupKeywords = map[string]bool{"team": true, "project": true, "group": true, "everyone": true}

// ExchangeLogger records every accepted dispatch to the durable exchange log.
type ExchangeLogger interface {
	LogExchange(e domain.WorkerExchangeLog) error
}

// Person is the roster projection the Hub needs for target resolution and
// the CC heuristic.
type Person struct {
	ID               int
	Name             string
	Role             string
	EmailAddress     string
	ChatHandle       string
	IsDepartmentHead bool
}

// dedupKey mirrors the original's (tick, channel, sender, recipients,
// subject, body) tuple.
type dedupKey struct {
	tick       int
	channel    string
	sender     string
	recipients string
	subject    string
	body       string
}

type cooldownKey struct {
	channel    string
	sender     string
	recipients string
}

// recentEmailRing is a bounded (capacity 10) FIFO of a persona's most
// recent emails, used to resolve reply-threading directives.
type recentEmailRing struct {
	entries []domain.RecentEmail
}

const recentEmailRingSize = 10

func (r *recentEmailRing) push(e domain.RecentEmail) {
	r.entries = append(r.entries, e)
	if len(r.entries) > recentEmailRingSize {
		r.entries = r.entries[len(r.entries)-recentEmailRingSize:]
	}
}

// Hub is the Communication Hub.
type Hub struct {
	emailGW              gateway.EmailGateway
	chatGW               gateway.ChatGateway
	exchange             ExchangeLogger
	loc                  *locale.Manager
	cooldownTicks        int
	externalStakeholders map[string]bool

	mu            sync.Mutex
	sentDedup     map[dedupKey]bool
	lastContact   map[cooldownKey]int
	scheduled     map[int]map[int][]domain.ScheduledAction // personID -> tick -> actions
	recentEmails  map[int]*recentEmailRing                 // personID -> ring
}

// New builds a Communication Hub. externalStakeholders is an allow-list of
// email addresses (lowercased for comparison) permitted as literal email
// targets even when absent from the roster, per spec.md §4.7.
func New(emailGW gateway.EmailGateway, chatGW gateway.ChatGateway, exchange ExchangeLogger, loc *locale.Manager, cooldownTicks int, externalStakeholders []string) *Hub {
	allow := make(map[string]bool, len(externalStakeholders))
	for _, addr := range externalStakeholders {
		allow[strings.ToLower(strings.TrimSpace(addr))] = true
	}
	return &Hub{
		emailGW: emailGW, chatGW: chatGW, exchange: exchange, loc: loc,
		cooldownTicks: cooldownTicks, externalStakeholders: allow,
		sentDedup: make(map[dedupKey]bool), lastContact: make(map[cooldownKey]int),
		scheduled: make(map[int]map[int][]domain.ScheduledAction), recentEmails: make(map[int]*recentEmailRing),
	}
}

// ResetTickDedup clears the per-tick dedup set; called once per tick by the
// Engine Coordinator before any sends are attempted.
func (h *Hub) ResetTickDedup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sentDedup = make(map[dedupKey]bool)
}

// canSend applies the dedup+cooldown gate, recording the send on success.
func (h *Hub) canSend(tick int, channel, sender string, recipients []string, subject, body string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	recipKey := recipientKey(recipients)
	dk := dedupKey{tick: tick, channel: channel, sender: sender, recipients: recipKey, subject: subject, body: strings.TrimSpace(body)}
	if h.sentDedup[dk] {
		return false
	}
	ck := cooldownKey{channel: channel, sender: sender, recipients: recipKey}
	if last, ok := h.lastContact[ck]; ok && tick-last < h.cooldownTicks {
		return false
	}
	h.sentDedup[dk] = true
	h.lastContact[ck] = tick
	return true
}

func recipientKey(recipients []string) string {
	sorted := append([]string(nil), recipients...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// RecentEmailsForPerson returns the person's most recent emails, oldest
// first, capped at limit; satisfies planner.RecentEmailProvider.
func (h *Hub) RecentEmailsForPerson(personID, limit int) []domain.RecentEmail {
	h.mu.Lock()
	defer h.mu.Unlock()
	ring, ok := h.recentEmails[personID]
	if !ok {
		return nil
	}
	entries := ring.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]domain.RecentEmail, len(entries))
	copy(out, entries)
	return out
}

func (h *Hub) pushRecentEmail(personID int, e domain.RecentEmail) {
	ring, ok := h.recentEmails[personID]
	if !ok {
		ring = &recentEmailRing{}
		h.recentEmails[personID] = ring
	}
	ring.push(e)
}

// threadIDForReply looks up [email-id] in the sender's recent-emails ring,
// returning the thread id and original sender, or ("", "") if not found.
func (h *Hub) threadIDForReply(personID int, emailID string) (threadID, originalSender string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ring, ok := h.recentEmails[personID]
	if !ok {
		return "", ""
	}
	for _, e := range ring.entries {
		if e.EmailID == emailID {
			return e.ThreadID, e.From
		}
	}
	return "", ""
}

func newThreadID() string {
	return "thread-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// ScheduleFromHourlyPlan parses plan text for scheduled-comm lines and adds
// them to the per-person, per-tick schedule, per spec.md §4.7.
func (h *Hub) ScheduleFromHourlyPlan(personID int, planText string, currentTick, hoursPerDay int) {
	actions := ParsePlanText(planText, currentTick, hoursPerDay)
	if len(actions) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	byTick := h.scheduled[personID]
	if byTick == nil {
		byTick = make(map[int][]domain.ScheduledAction)
		h.scheduled[personID] = byTick
	}
	for tick, tickActions := range actions {
		existing := byTick[tick]
		for _, action := range tickActions {
			if !containsAction(existing, action) {
				existing = append(existing, action)
			}
		}
		byTick[tick] = existing
	}
}

// ScheduleDirectComm schedules a single comm directly for (personID, tick),
// bypassing plan-text parsing; used for the kickoff messages Engine.Start
// seeds for every active persona. subject is ignored for chat channels.
func (h *Hub) ScheduleDirectComm(personID, tick int, channel domain.Channel, target, subject, body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byTick := h.scheduled[personID]
	if byTick == nil {
		byTick = make(map[int][]domain.ScheduledAction)
		h.scheduled[personID] = byTick
	}
	action := domain.ScheduledAction{Channel: channel, Target: target, Subject: subject, Body: body}
	if !containsAction(byTick[tick], action) {
		byTick[tick] = append(byTick[tick], action)
	}
}

func containsAction(existing []domain.ScheduledAction, a domain.ScheduledAction) bool {
	for _, e := range existing {
		if e.Channel == a.Channel && e.Target == a.Target && e.Subject == a.Subject && e.Body == a.Body && e.ReplyToEmail == a.ReplyToEmail {
			return true
		}
	}
	return false
}

// popScheduled removes and returns the actions scheduled for (personID, tick).
func (h *Hub) popScheduled(personID, tick int) []domain.ScheduledAction {
	h.mu.Lock()
	defer h.mu.Unlock()
	byTick := h.scheduled[personID]
	if byTick == nil {
		return nil
	}
	actions := byTick[tick]
	delete(byTick, tick)
	return actions
}

// DispatchDeps supplies the closures and formatter the dispatch pass needs
// without the Hub holding a back-reference to the Engine Coordinator.
type DispatchDeps struct {
	SimDatetimeForTick func(tick int) time.Time
	CurrentWeek        func() int
	ActiveProjectIDs   func(personID, week int) []int
	ProjectChatRoom    func(projectID int) (slug string, ok bool)
}

// Dispatch runs the dispatch pass for person at tick, per spec.md §4.7's
// numbered steps; returns (emailsSent, chatsSent).
func (h *Hub) Dispatch(ctx context.Context, person Person, tick int, roster []Person, deps DispatchDeps) (int, int) {
	actions := h.popScheduled(person.ID, tick)
	if len(actions) == 0 {
		return 0, 0
	}

	sentAt := deps.SimDatetimeForTick(tick)
	emails, chats := 0, 0

	for _, act := range actions {
		switch act.Channel {
		case domain.ChannelEmail:
			if h.dispatchEmail(ctx, person, roster, act, tick, sentAt) {
				emails++
			}
		case domain.ChannelChat:
			if h.dispatchChat(ctx, person, roster, act, tick, sentAt, deps) {
				chats++
			}
		}
	}
	return emails, chats
}

func (h *Hub) dispatchEmail(ctx context.Context, person Person, roster []Person, act domain.ScheduledAction, tick int, sentAt time.Time) bool {
	target := act.Target
	threadID := ""
	if act.ReplyToEmail != "" {
		tID, originalSender := h.threadIDForReply(person.ID, act.ReplyToEmail)
		if originalSender == "" {
			return false // reply-to email-id not found: directive dropped without logging
		}
		target = originalSender
		threadID = tID
	}

	emailTo, _ := matchTarget(target, roster, h.externalStakeholders)
	if emailTo == "" {
		return false
	}

	subject, body := act.Subject, act.Body
	if subject == "" {
		subject = h.loc.GetTemplate("update_generic", map[string]string{"name": person.Name})
	}

	ccEmails := resolveEmails(act.CC, roster, h.externalStakeholders)
	if len(ccEmails) == 0 {
		ccEmails = h.suggestCC(person, roster, emailTo)
	}
	bccEmails := resolveEmails(act.BCC, roster, h.externalStakeholders)

	recipients := append([]string{emailTo}, ccEmails...)
	recipients = append(recipients, bccEmails...)
	if !h.canSend(tick, "email", person.EmailAddress, recipients, subject, body) {
		return false
	}

	if threadID == "" {
		threadID = newThreadID()
	}

	emailID, err := h.emailGW.SendEmail(ctx, gateway.SendEmailRequest{
		Sender: person.EmailAddress, To: []string{emailTo}, CC: ccEmails, BCC: bccEmails,
		Subject: subject, Body: body, ThreadID: threadID, SentAtISO: sentAt.Format(time.RFC3339),
	})
	if err != nil {
		return false
	}
	if emailID == "" {
		emailID = fmt.Sprintf("email-%d-%s", tick, person.ChatHandle)
	}

	h.recordSentEmail(person, roster, emailID, emailTo, ccEmails, subject, threadID, tick)
	h.logExchange(tick, person.ID, lookupPersonID(roster, emailTo), domain.ChannelEmail, subject, body, sentAt)
	return true
}

func (h *Hub) recordSentEmail(person Person, roster []Person, emailID, to string, cc []string, subject, threadID string, tick int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	record := domain.RecentEmail{EmailID: emailID, From: person.EmailAddress, To: to, Subject: subject, ThreadID: threadID, SentAtTick: tick}
	h.pushRecentEmail(person.ID, record)
	for _, addr := range append([]string{to}, cc...) {
		if pid := lookupPersonID(roster, addr); pid != 0 {
			h.pushRecentEmail(pid, record)
		}
	}
}

func (h *Hub) dispatchChat(ctx context.Context, person Person, roster []Person, act domain.ScheduledAction, tick int, sentAt time.Time, deps DispatchDeps) bool {
	_, chatTo := matchTarget(act.Target, roster, h.externalStakeholders)
	if chatTo == "" {
		return false
	}

	if groupKeywords[strings.ToLower(chatTo)] {
		week := deps.CurrentWeek()
		projectIDs := deps.ActiveProjectIDs(person.ID, week)
		if len(projectIDs) == 0 {
			return false
		}
		slug, ok := deps.ProjectChatRoom(projectIDs[0])
		if !ok || slug == "" {
			return false
		}
		if !h.canSend(tick, "chat", person.ChatHandle, []string{slug}, "", act.Body) {
			return false
		}
		if err := h.chatGW.SendRoomMessage(ctx, slug, gateway.SendRoomMessageRequest{Sender: person.ChatHandle, Body: act.Body, SentAtISO: sentAt.Format(time.RFC3339)}); err != nil {
			return false
		}
		h.logExchange(tick, person.ID, 0, domain.ChannelChat, "", act.Body, sentAt)
		return true
	}

	// DM mirroring guard: only the lexicographically smaller handle sends.
	if strings.ToLower(person.ChatHandle) > strings.ToLower(chatTo) {
		return false
	}
	if !h.canSend(tick, "chat", person.ChatHandle, []string{chatTo}, "", act.Body) {
		return false
	}
	if err := h.chatGW.SendDM(ctx, gateway.SendDMRequest{Sender: person.ChatHandle, Recipient: chatTo, Body: act.Body, SentAtISO: sentAt.Format(time.RFC3339)}); err != nil {
		return false
	}
	h.logExchange(tick, person.ID, lookupPersonIDByHandle(roster, chatTo), domain.ChannelChat, "", act.Body, sentAt)
	return true
}

// SendAck sends a direct chat acknowledgement from person back to sender,
// in response to a drained inbound message's summary/action item, subject
// to the usual cooldown/dedup gate. Returns the body actually sent, or ""
// if the send was suppressed (deduped, cooled down, or no chat handle).
// Grounded on engine.py's per-drained-message ack loop
// (engine.py:1004-1108), simplified to one ack phrasing rather than the
// original's random.choice over four near-identical Korean patterns.
func (h *Hub) SendAck(ctx context.Context, person Person, sender Person, ackPhrase string, tick int, sentAt time.Time) string {
	if sender.ChatHandle == "" {
		return ""
	}
	ackPhrase = strings.TrimSuffix(strings.TrimSpace(ackPhrase), ".")
	if ackPhrase == "" {
		ackPhrase = h.loc.GetText("your_latest_update")
	}
	body := h.loc.GetTemplate("acknowledged_update", map[string]string{"phrase": ackPhrase})
	if !h.canSend(tick, "chat", person.ChatHandle, []string{sender.ChatHandle}, "", body) {
		return ""
	}
	if err := h.chatGW.SendDM(ctx, gateway.SendDMRequest{Sender: person.ChatHandle, Recipient: sender.ChatHandle, Body: body, SentAtISO: sentAt.Format(time.RFC3339)}); err != nil {
		return ""
	}
	h.logExchange(tick, person.ID, sender.ID, domain.ChannelChat, "", body, sentAt)
	return body
}

func (h *Hub) logExchange(tick, senderID, recipientID int, channel domain.Channel, subject, body string, sentAt time.Time) {
	if h.exchange == nil {
		return
	}
	_ = h.exchange.LogExchange(domain.WorkerExchangeLog{
		Tick: tick, SenderID: senderID, RecipientID: recipientID, Channel: channel,
		Subject: subject, Body: body, SentAt: sentAt,
	})
}

// suggestCC implements the CC-suggestion heuristic of spec.md §4.7: the
// department head (if distinct from sender/primary) plus one peer chosen by
// role affinity.
func (h *Hub) suggestCC(person Person, roster []Person, primaryToEmail string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(addr string) {
		low := strings.ToLower(addr)
		if addr == "" || seen[low] {
			return
		}
		seen[low] = true
		out = append(out, addr)
	}

	var primary *Person
	for i := range roster {
		if strings.EqualFold(roster[i].EmailAddress, primaryToEmail) {
			primary = &roster[i]
			break
		}
	}

	for _, p := range roster {
		if p.IsDepartmentHead && !strings.EqualFold(p.EmailAddress, person.EmailAddress) && !strings.EqualFold(p.EmailAddress, primaryToEmail) {
			add(p.EmailAddress)
			break
		}
	}

	wantPeer := rolePeerAffinity(person.Role)
	if wantPeer == "" && primary != nil {
		wantPeer = rolePeerAffinity(primary.Role)
	}
	if wantPeer != "" {
		for _, p := range roster {
			if p.ID == person.ID || (primary != nil && p.ID == primary.ID) {
				continue
			}
			if strings.Contains(strings.ToLower(p.Role), wantPeer) {
				if !strings.EqualFold(p.EmailAddress, person.EmailAddress) && !strings.EqualFold(p.EmailAddress, primaryToEmail) {
					add(p.EmailAddress)
					break
				}
			}
		}
	}
	return out
}

// rolePeerAffinity maps a role to the role of its preferred CC peer, per
// spec.md §4.7's devops<->dev, dev<->designer, design<->dev,
// product/pm<->dev affinities.
func rolePeerAffinity(role string) string {
	r := strings.ToLower(role)
	switch {
	case strings.Contains(r, "devops") || strings.Contains(r, "site reliability"):
		return "dev"
	case strings.Contains(r, "developer") || strings.Contains(r, "engineer") || strings.Contains(r, "dev"):
		return "designer"
	case strings.Contains(r, "design"):
		return "dev"
	case strings.Contains(r, "product") || strings.Contains(r, "pm") || strings.Contains(r, "manager"):
		return "dev"
	default:
		return ""
	}
}

// FallbackInput carries the rendered text a fallback send needs once a tick's
// planning pass produced no explicitly scheduled comms, per spec.md §4.8's
// Phase 3 fallback path (engine.py's no-recipients / with-recipients
// branches, ported here so sending stays owned by the Hub).
type FallbackInput struct {
	Recipients       []Person
	ProjectName      string
	DailySummary     string
	HourlySummary    string
	ActionItem       string
	SimManagerEmail  string
	SimManagerHandle string
}

func firstName(name string) string {
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

func orDefault(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DispatchFallback sends a status update from the sim manager to person
// (email plus chat DM) when person has no collaborators, or a per-collaborator update (email plus one chat DM
// to the first recipient) otherwise. Returns (emailsSent, chatsSent).
func (h *Hub) DispatchFallback(ctx context.Context, person Person, roster []Person, tick int, in FallbackInput, deps DispatchDeps) (int, int) {
	sentAt := deps.SimDatetimeForTick(tick)
	emails, chats := 0, 0

	if len(in.Recipients) == 0 {
		subject := h.loc.GetTemplate("update_for", map[string]string{"name": person.Name})
		body := strings.Join([]string{
			"Project: " + in.ProjectName,
			"Daily focus:\n" + in.DailySummary,
			"",
			"Hourly plan:\n" + in.HourlySummary,
			"",
			"Keep the runway clear for surprises.",
		}, "\n")
		if h.canSend(tick, "email", in.SimManagerEmail, []string{person.EmailAddress}, subject, body) {
			if _, err := h.emailGW.SendEmail(ctx, gateway.SendEmailRequest{
				Sender: in.SimManagerEmail, To: []string{person.EmailAddress}, Subject: subject, Body: body,
				ThreadID: newThreadID(), SentAtISO: sentAt.Format(time.RFC3339),
			}); err == nil {
				emails++
				h.logExchange(tick, 0, person.ID, domain.ChannelEmail, subject, body, sentAt)
			}
		}
		chatBody := "Quick update: " + strings.ReplaceAll(in.HourlySummary, "\n", " / ") + "\nLet me know if you need support."
		if h.canSend(tick, "chat", in.SimManagerHandle, []string{person.ChatHandle}, "", chatBody) {
			if err := h.chatGW.SendDM(ctx, gateway.SendDMRequest{
				Sender: in.SimManagerHandle, Recipient: person.ChatHandle, Body: chatBody, SentAtISO: sentAt.Format(time.RFC3339),
			}); err == nil {
				chats++
				h.logExchange(tick, 0, person.ID, domain.ChannelChat, "", chatBody, sentAt)
			}
		}
		return emails, chats
	}

	for i, recipient := range in.Recipients {
		subject := h.loc.GetTemplate("update_from_to", map[string]string{"from_name": person.Name, "to_name": recipient.Name})
		body := strings.Join([]string{
			"Hey " + firstName(recipient.Name) + ",", "",
			"Current focus:", orDefault(in.HourlySummary, in.DailySummary, "Heads down on deliverables."), "",
			"Request: " + in.ActionItem,
			"Ping me if you need anything shifted.",
		}, "\n")
		ccSuggest := h.suggestCC(person, roster, recipient.EmailAddress)
		recipients := append([]string{recipient.EmailAddress}, ccSuggest...)
		if h.canSend(tick, "email", person.EmailAddress, recipients, subject, body) {
			threadID := newThreadID()
			emailID, err := h.emailGW.SendEmail(ctx, gateway.SendEmailRequest{
				Sender: person.EmailAddress, To: []string{recipient.EmailAddress}, CC: ccSuggest,
				Subject: subject, Body: body, ThreadID: threadID, SentAtISO: sentAt.Format(time.RFC3339),
			})
			if err == nil {
				emails++
				if emailID == "" {
					emailID = fmt.Sprintf("email-%d-%s", tick, person.ChatHandle)
				}
				h.recordSentEmail(person, roster, emailID, recipient.EmailAddress, ccSuggest, subject, threadID, tick)
				h.logExchange(tick, person.ID, recipient.ID, domain.ChannelEmail, subject, body, sentAt)
			}
		}
		if i == 0 {
			chatBody := "Quick update: " + in.ActionItem
			if h.canSend(tick, "chat", person.ChatHandle, []string{recipient.ChatHandle}, "", chatBody) {
				if err := h.chatGW.SendDM(ctx, gateway.SendDMRequest{
					Sender: person.ChatHandle, Recipient: recipient.ChatHandle, Body: chatBody, SentAtISO: sentAt.Format(time.RFC3339),
				}); err == nil {
					chats++
					h.logExchange(tick, person.ID, recipient.ID, domain.ChannelChat, "", chatBody, sentAt)
				}
			}
		}
	}
	return emails, chats
}

func lookupPersonID(roster []Person, emailAddress string) int {
	for _, p := range roster {
		if strings.EqualFold(p.EmailAddress, emailAddress) {
			return p.ID
		}
	}
	return 0
}

func lookupPersonIDByHandle(roster []Person, handle string) int {
	for _, p := range roster {
		if strings.EqualFold(p.ChatHandle, handle) {
			return p.ID
		}
	}
	return 0
}
