// Package project is the Project Manager (C4): stores project plans,
// resolves per-persona active-project sets for a given week, and manages
// per-project group-chat room lifecycle. Grounded directly on
// original_source/.../project_manager.py, generalized to Go with the
// teacher's style of a thin in-memory cache over store-backed reads
// (internal/app/orchestrator.go's pattern of reading live state and
// mutating a cached view).
package project

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
	"github.com/nemit0/virtualoffice-sim/internal/gateway"
)

// Store is the subset of the State Store the Project Manager needs.
type Store interface {
	StoreProjectPlan(p domain.ProjectPlan, assignedPersonIDs []int) (domain.ProjectPlan, error)
	GetProjectPlan(id *int) (domain.ProjectPlan, bool, error)
	GetActiveProjectsForPerson(personID, week int) ([]domain.ProjectPlan, error)
	GetAllProjectsActiveInWeek(week int) ([]domain.ProjectPlan, error)
	GetProjectsStartingAfterWeek(week int) ([]domain.ProjectPlan, error)
	AssignedPersonIDsForProject(projectID int) ([]int, error)
	ListAllProjects() ([]domain.ProjectPlan, error)
	CreateProjectChatRoomRecord(projectID int, slug, name string) error
	GetActiveProjectChatRoom(projectID int) (string, bool, error)
	ArchiveProjectChatRoom(projectID int) (bool, error)
	ListActiveProjectIDsWithRooms() ([]int, error)
}

// TeamMember is a lightweight persona projection used for room creation and
// team-roster queries.
type TeamMember struct {
	ID         int
	Name       string
	Role       string
	ChatHandle string
}

// ProjectWithTeam pairs a project with its resolved team members.
type ProjectWithTeam struct {
	Project     domain.ProjectPlan
	TeamMembers []TeamMember
}

// Manager is the Project Manager.
type Manager struct {
	store  Store
	logger *log.Logger

	mu          sync.Mutex
	recentPlan  *domain.ProjectPlan
}

// New creates a Project Manager.
func New(store Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{store: store, logger: logger}
}

// GetProjectPlan returns the plan by id, or the most-recently stored plan
// (served from an in-memory cache) when id is nil.
func (m *Manager) GetProjectPlan(id *int) (domain.ProjectPlan, bool, error) {
	if id == nil {
		m.mu.Lock()
		cached := m.recentPlan
		m.mu.Unlock()
		if cached != nil {
			return *cached, true, nil
		}
	}
	return m.store.GetProjectPlan(id)
}

// ClearCache drops the cached most-recent plan.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.recentPlan = nil
	m.mu.Unlock()
}

// StoreProjectPlan inserts a new project plan and caches it as most-recent.
func (m *Manager) StoreProjectPlan(projectName, summary, content, modelUsed string, tokensUsed, generatedBy, durationWeeks, startWeek int, assignedPersonIDs []int) (domain.ProjectPlan, error) {
	if startWeek < 1 {
		startWeek = 1
	}
	p := domain.ProjectPlan{
		ProjectName:    projectName,
		ProjectSummary: summary,
		Plan:           content,
		GeneratedBy:    generatedBy,
		DurationWeeks:  durationWeeks,
		StartWeek:      startWeek,
		ModelUsed:      modelUsed,
		TokensUsed:     tokensUsed,
	}
	stored, err := m.store.StoreProjectPlan(p, assignedPersonIDs)
	if err != nil {
		return domain.ProjectPlan{}, fmt.Errorf("project: store plan: %w", err)
	}
	m.mu.Lock()
	m.recentPlan = &stored
	m.mu.Unlock()
	return stored, nil
}

// GetActiveProjectsForPerson returns the union of projects explicitly
// assigned to personID and team-wide (unassigned) projects active in week,
// ordered by start_week ascending, per spec.md §4.4.
func (m *Manager) GetActiveProjectsForPerson(personID, week int) ([]domain.ProjectPlan, error) {
	ps, err := m.store.GetActiveProjectsForPerson(personID, week)
	if err != nil {
		return nil, fmt.Errorf("project: active projects for person: %w", err)
	}
	return ps, nil
}

// GetActiveProjectForPerson returns the first active project for personID
// in week, or false if none, maintaining backward compatibility with the
// original source's single-project convenience accessor.
func (m *Manager) GetActiveProjectForPerson(personID, week int) (domain.ProjectPlan, bool, error) {
	ps, err := m.GetActiveProjectsForPerson(personID, week)
	if err != nil {
		return domain.ProjectPlan{}, false, err
	}
	if len(ps) == 0 {
		return domain.ProjectPlan{}, false, nil
	}
	return ps[0], true, nil
}

// GetActiveProjectsWithAssignments returns every project active in week,
// each paired with its resolved team (explicit assignments, or every
// persona in allPersonas if the project has none).
func (m *Manager) GetActiveProjectsWithAssignments(week int, allPersonas []TeamMember) ([]ProjectWithTeam, error) {
	projects, err := m.store.GetAllProjectsActiveInWeek(week)
	if err != nil {
		return nil, fmt.Errorf("project: active projects with assignments: %w", err)
	}
	byID := make(map[int]TeamMember, len(allPersonas))
	for _, p := range allPersonas {
		byID[p.ID] = p
	}
	var out []ProjectWithTeam
	for _, proj := range projects {
		ids, err := m.store.AssignedPersonIDsForProject(proj.ID)
		if err != nil {
			return nil, fmt.Errorf("project: assigned ids for %d: %w", proj.ID, err)
		}
		var team []TeamMember
		if len(ids) == 0 {
			team = allPersonas
		} else {
			for _, id := range ids {
				if tm, ok := byID[id]; ok {
					team = append(team, tm)
				}
			}
		}
		out = append(out, ProjectWithTeam{Project: proj, TeamMembers: team})
	}
	return out, nil
}

// CountActiveAndFutureProjects returns the number of projects active in week
// and the number whose start_week is strictly after week; used by the
// Engine Coordinator's auto-pause supervisor.
func (m *Manager) CountActiveAndFutureProjects(week int) (active int, future int, err error) {
	act, err := m.store.GetAllProjectsActiveInWeek(week)
	if err != nil {
		return 0, 0, fmt.Errorf("project: count active: %w", err)
	}
	fut, err := m.store.GetProjectsStartingAfterWeek(week)
	if err != nil {
		return 0, 0, fmt.Errorf("project: count future: %w", err)
	}
	return len(act), len(fut), nil
}

// IsProjectComplete reports whether currentWeek is strictly after the
// project's end week, per spec.md §4.4.
func IsProjectComplete(p domain.ProjectPlan, currentWeek int) bool {
	return currentWeek > p.EndWeek()
}

// CreateProjectChatRoom creates a group chat room via chatGateway and
// records the mapping; failure to create the room is logged and non-fatal,
// per spec.md §4.4.
func (m *Manager) CreateProjectChatRoom(ctx context.Context, projectID int, projectName string, team []TeamMember, chatGateway gateway.ChatGateway) (string, error) {
	roomName := projectName + " Team"
	slug := fmt.Sprintf("project-%d-%s", projectID, slugify(projectName))

	handles := make([]string, 0, len(team))
	for _, t := range team {
		if t.ChatHandle != "" {
			handles = append(handles, t.ChatHandle)
		}
	}

	_, err := chatGateway.CreateRoom(ctx, gateway.CreateRoomRequest{Name: roomName, Participants: handles, Slug: slug})
	if err != nil {
		m.logger.Printf("project: create chat room for project %d failed (non-fatal): %v", projectID, err)
		return "", nil
	}
	if err := m.store.CreateProjectChatRoomRecord(projectID, slug, roomName); err != nil {
		return "", fmt.Errorf("project: record chat room: %w", err)
	}
	m.logger.Printf("project: created chat room %q for project %d", slug, projectID)
	return slug, nil
}

// GetActiveProjectChatRoom returns the active room slug for projectID.
func (m *Manager) GetActiveProjectChatRoom(projectID int) (string, bool, error) {
	slug, ok, err := m.store.GetActiveProjectChatRoom(projectID)
	if err != nil {
		return "", false, fmt.Errorf("project: get active chat room: %w", err)
	}
	return slug, ok, nil
}

// ArchiveProjectChatRoom archives a completed project's room; idempotent.
func (m *Manager) ArchiveProjectChatRoom(projectID int) (bool, error) {
	archived, err := m.store.ArchiveProjectChatRoom(projectID)
	if err != nil {
		return false, fmt.Errorf("project: archive chat room: %w", err)
	}
	if archived {
		m.logger.Printf("project: archived chat room for project %d", projectID)
	}
	return archived, nil
}

// ArchiveCompletedProjectRooms archives rooms for every project whose
// EndWeek < currentWeek, called by the auto-pause supervisor.
func (m *Manager) ArchiveCompletedProjectRooms(currentWeek int) error {
	ids, err := m.store.ListActiveProjectIDsWithRooms()
	if err != nil {
		return fmt.Errorf("project: list active rooms: %w", err)
	}
	for _, id := range ids {
		p, ok, err := m.store.GetProjectPlan(&id)
		if err != nil {
			return fmt.Errorf("project: get plan for room archival: %w", err)
		}
		if !ok {
			continue
		}
		if currentWeek > p.EndWeek() {
			if _, err := m.ArchiveProjectChatRoom(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListAllProjects returns every stored project plan.
func (m *Manager) ListAllProjects() ([]domain.ProjectPlan, error) {
	ps, err := m.store.ListAllProjects()
	if err != nil {
		return nil, fmt.Errorf("project: list all: %w", err)
	}
	return ps, nil
}

func slugify(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
