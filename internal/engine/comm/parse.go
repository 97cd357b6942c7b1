package comm

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// Three regex line shapes, matched against every line of the plan text
// (no section header is required), per spec.md §4.7; case-insensitive, grounded on
// original_source/.../communication_hub.py's schedule_from_hourly_plan.
var (
	emailLineRE = regexp.MustCompile(`(?i)^Email\s+at\s+(\d{2}:\d{2})\s+to\s+([^:]+?)(?:\s+cc\s+([^:]+?))?(?:\s+bcc\s+([^:]+?))?\s*:\s*(.*)$`)
	replyLineRE = regexp.MustCompile(`(?i)^Reply\s+at\s+(\d{2}:\d{2})\s+to\s+\[([^\]]+)\](?:\s+cc\s+([^:]+?))?(?:\s+bcc\s+([^:]+?))?\s*:\s*(.*)$`)
	chatLineRE  = regexp.MustCompile(`(?i)^Chat\s+at\s+(\d{2}:\d{2})\s+(?:with|to)\s+([^:]+):\s*(.*)$`)
)

// ParsePlanText parses scheduled-comm lines out of plan text and places
// each on the current day at baseTick+scheduledTickOfDay, per spec.md §4.7:
// "scheduledTickOfDay = round((HH*60+MM) * H / 1440)"; lines whose computed
// tick-of-day does not exceed the current tick-of-day are dropped (already
// past for today).
func ParsePlanText(planText string, currentTick, hoursPerDay int) map[int][]domain.ScheduledAction {
	ticksPerDay := hoursPerDay
	if ticksPerDay < 1 {
		ticksPerDay = 1
	}
	dayIndex := (currentTick - 1) / ticksPerDay
	tickOfDay := (currentTick - 1) % ticksPerDay
	baseTick := dayIndex*ticksPerDay + 1

	out := make(map[int][]domain.ScheduledAction)
	for _, raw := range strings.Split(planText, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		action, ok := parseLine(line)
		if !ok {
			continue
		}
		scheduledTickOfDay, ok := tickOfDayFromHHMM(action.rawWhen, ticksPerDay)
		if !ok || scheduledTickOfDay <= tickOfDay {
			continue
		}
		t := baseTick + scheduledTickOfDay
		action.action.TickOfDay = scheduledTickOfDay
		out[t] = append(out[t], action.action)
	}
	return out
}

type parsedLine struct {
	rawWhen string
	action  domain.ScheduledAction
}

func parseLine(line string) (parsedLine, bool) {
	if m := emailLineRE.FindStringSubmatch(line); m != nil {
		subject, body := splitSubjectBody(m[5])
		return parsedLine{rawWhen: m[1], action: domain.ScheduledAction{
			Channel: domain.ChannelEmail, Target: strings.TrimSpace(m[2]),
			CC: splitList(m[3]), BCC: splitList(m[4]), Subject: subject, Body: body,
		}}, true
	}
	if m := replyLineRE.FindStringSubmatch(line); m != nil {
		subject, body := splitSubjectBody(m[5])
		return parsedLine{rawWhen: m[1], action: domain.ScheduledAction{
			Channel: domain.ChannelEmail, ReplyToEmail: strings.TrimSpace(m[2]),
			CC: splitList(m[3]), BCC: splitList(m[4]), Subject: subject, Body: body,
		}}, true
	}
	if m := chatLineRE.FindStringSubmatch(line); m != nil {
		return parsedLine{rawWhen: m[1], action: domain.ScheduledAction{
			Channel: domain.ChannelChat, Target: strings.TrimSpace(m[2]), Body: strings.TrimSpace(m[3]),
		}}, true
	}
	return parsedLine{}, false
}

func splitSubjectBody(payload string) (subject, body string) {
	payload = strings.TrimSpace(payload)
	if idx := strings.Index(payload, " | "); idx >= 0 {
		return strings.TrimSpace(payload[:idx]), strings.TrimSpace(payload[idx+3:])
	}
	return "", payload
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func tickOfDayFromHHMM(hhmm string, ticksPerDay int) (int, bool) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	minutes := hh*60 + mm
	return int(math.Round(float64(minutes*ticksPerDay) / 1440.0)), true
}

// --- target resolution -----------------------------------------------------

// matchTarget resolves a raw target token to (emailAddress, chatHandle),
// either of which may be empty, per spec.md §4.7's five resolution rules.
func matchTarget(raw string, roster []Person, externalStakeholders map[string]bool) (emailAddr, chatHandle string) {
	val := strings.ToLower(strings.TrimSpace(raw))
	if groupKeywords[val] {
		return "", val
	}
	for _, p := range roster {
		if strings.ToLower(p.EmailAddress) == val {
			return p.EmailAddress, ""
		}
	}
	for _, p := range roster {
		handle := strings.ToLower(p.ChatHandle)
		if handle == val || "@"+handle == val {
			return "", p.ChatHandle
		}
	}
	for _, p := range roster {
		if strings.ToLower(p.Name) == val {
			return p.EmailAddress, p.ChatHandle
		}
	}
	if strings.Contains(val, "@") {
		// already checked against roster emails above; this is a literal
		// address not on the roster, so it's only valid via the allow-list
		if externalStakeholders[val] {
			return val, ""
		}
		return "", "" // hallucinated email address: rejected
	}
	return "", strings.TrimSpace(raw)
}

// resolveEmails resolves a raw cc/bcc token list to roster/allow-listed
// email addresses, dropping anything unresolved.
func resolveEmails(raw []string, roster []Person, externalStakeholders map[string]bool) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range raw {
		addr, _ := matchTarget(tok, roster, externalStakeholders)
		if addr == "" {
			continue
		}
		low := strings.ToLower(addr)
		if !seen[low] {
			seen[low] = true
			out = append(out, addr)
		}
	}
	return out
}
