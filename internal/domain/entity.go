// Package domain holds simulation entities shared across the engine packages.
// It has no dependencies on other internal packages.
package domain

import "time"

// Persona is a synthetic worker driven through the simulated workday.
type Persona struct {
	ID                 int
	Name               string
	Role               string
	Timezone           string
	EmailAddress       string
	ChatHandle         string
	WorkHours          string // "HH:MM-HH:MM"
	BreakFrequency     string
	CommunicationStyle string
	Skills             string
	Personality        string
	Objectives         string
	Metrics            string
	PlanningGuidelines string
	EventPlaybook      string
	StatusVocabulary   string
	MarkdownProfile    string
	IsDepartmentHead   bool

	// WorkStartTick and WorkEndTick are the persona's cached work-hours window,
	// in tick-of-day units. Populated by tickmgr.Manager.ParseWorkHours and
	// refreshed whenever HoursPerDay changes.
	WorkStartTick int
	WorkEndTick   int
}

// ProjectPlan is a stored project plan.
type ProjectPlan struct {
	ID              int
	ProjectName     string
	ProjectSummary  string
	Plan            string
	GeneratedBy     int // 0 means none
	DurationWeeks   int
	StartWeek       int
	ModelUsed       string
	TokensUsed      int
	CreatedAt       time.Time
}

// EndWeek returns the last week (inclusive) the project is active.
func (p ProjectPlan) EndWeek() int {
	return p.StartWeek + p.DurationWeeks - 1
}

// ActiveInWeek reports whether the project is active during week w.
func (p ProjectPlan) ActiveInWeek(w int) bool {
	return p.StartWeek <= w && w <= p.EndWeek()
}

// ProjectAssignment pairs a project with an assigned persona.
type ProjectAssignment struct {
	ProjectID int
	PersonID  int
}

// ProjectChatRoom is the group-chat room bound to a project.
type ProjectChatRoom struct {
	ProjectID  int
	RoomSlug   string
	RoomName   string
	IsActive   bool
	CreatedAt  time.Time
	ArchivedAt *time.Time
}

// PlanType distinguishes daily from hourly worker plans.
type PlanType string

const (
	PlanTypeDaily  PlanType = "daily"
	PlanTypeHourly PlanType = "hourly"
)

// WorkerPlan is a single daily or hourly plan row.
type WorkerPlan struct {
	ID         int
	PersonID   int
	Tick       int
	PlanType   PlanType
	Content    string
	ModelUsed  string
	TokensUsed int
	Context    string
	CreatedAt  time.Time
}

// HourlySummary aggregates a persona's hourly plans into one hour-index row.
type HourlySummary struct {
	ID        int
	PersonID  int
	HourIndex int
	Content   string
	CreatedAt time.Time
}

// DailyReport aggregates a persona's hourly summaries into one day-index row.
type DailyReport struct {
	ID        int
	PersonID  int
	DayIndex  int
	Content   string
	CreatedAt time.Time
}

// SimulationReport is a read-only rollup across the whole run, not persisted
// per tick; generated on demand by the admin control surface.
type SimulationReport struct {
	AsOfTick      int
	PersonaCount  int
	ProjectCount  int
	EmailsSent    int
	ChatsSent     int
	TicksAdvanced int
}

// Event is a write-once injected or generated simulation event.
type Event struct {
	ID        int
	Type      string
	TargetIDs []int
	ProjectID int // 0 means none
	AtTick    int
	Payload   map[string]any
}

// MessageType classifies an InboundMessage.
type MessageType string

const (
	MessageTypeUpdate MessageType = "update"
	MessageTypeAck    MessageType = "ack"
	MessageTypeEvent  MessageType = "event"
)

// Channel identifies the medium a message or comm travels over.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelChat      Channel = "chat"
	ChannelSystem    Channel = "system"
	ChannelEmailChat Channel = "email+chat"
)

// InboundMessage is a durable inbox item awaiting a persona's next planning pass.
type InboundMessage struct {
	ID          int
	RecipientID int
	SenderID    int
	SenderName  string
	Subject     string
	Summary     string
	ActionItem  string
	MessageType MessageType
	Channel     Channel
	Tick        int
}

// WorkerStatusOverride is a temporary status assignment, e.g. SickLeave.
type WorkerStatusOverride struct {
	WorkerID  int
	Status    string
	UntilTick int
	Reason    string
}

// SimulationState is the singleton simulation-state row (id=1).
type SimulationState struct {
	CurrentTick int
	IsRunning   bool
	AutoTick    bool
}

// TickLogEntry is an append-only record of a tick advance.
type TickLogEntry struct {
	ID        int
	Tick      int
	Reason    string
	CreatedAt time.Time
}

// ScheduleBlock is a per-persona minute-level calendar entry, supplemented
// from the original source's schedule rendering; preserved across a
// persona-preserving reset.
type ScheduleBlock struct {
	PersonID  int
	DayIndex  int
	StartTick int
	EndTick   int
	Label     string
}

// WorkerExchangeLog records every accepted dispatch, fallback comm, and
// event-driven email/chat exchange. Supplemented from the original source;
// satisfies invariant 4 of spec §8 (exchange-log record for every send).
type WorkerExchangeLog struct {
	ID          int
	Tick        int
	SenderID    int // 0 for system/simulation-manager sender
	RecipientID int
	Channel     Channel
	Subject     string
	Body        string
	SentAt      time.Time
}

// ScheduledAction is one parsed scheduled-communication directive, held only
// in memory keyed by (personID, tick) until dispatched.
type ScheduledAction struct {
	ID            string
	Channel       Channel
	Target        string // raw target text as parsed (name, handle, email, or group keyword)
	Subject       string
	Body          string
	CC            []string
	BCC           []string
	ReplyToEmail  string // "[email-id]" reference, empty if not a reply
	TickOfDay     int
}

// RecentEmail is a bounded per-persona ring-buffer entry used to resolve
// reply-threading directives.
type RecentEmail struct {
	EmailID    string
	From       string
	To         string
	Subject    string
	ThreadID   string
	SentAtTick int
}
