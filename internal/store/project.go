package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// StoreProjectPlan inserts a project plan and its (optional) assignment rows
// in one transaction, per spec.md §4.4.
func (s *Store) StoreProjectPlan(p domain.ProjectPlan, assignedPersonIDs []int) (domain.ProjectPlan, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.ProjectPlan{}, fmt.Errorf("store: store project plan begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.Exec(`
		INSERT INTO project_plans(project_name, project_summary, plan, generated_by, duration_weeks, start_week, model_used, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ProjectName, p.ProjectSummary, p.Plan, p.GeneratedBy, p.DurationWeeks, p.StartWeek, p.ModelUsed, p.TokensUsed, formatTime(now))
	if err != nil {
		return domain.ProjectPlan{}, fmt.Errorf("store: store project plan insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ProjectPlan{}, fmt.Errorf("store: store project plan id: %w", err)
	}
	for _, pid := range assignedPersonIDs {
		if _, err := tx.Exec("INSERT OR IGNORE INTO project_assignments(project_id, person_id) VALUES (?, ?)", id, pid); err != nil {
			return domain.ProjectPlan{}, fmt.Errorf("store: store project assignment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ProjectPlan{}, fmt.Errorf("store: store project plan commit: %w", err)
	}
	p.ID = int(id)
	p.CreatedAt = now
	return p, nil
}

func scanProjectPlan(row interface{ Scan(...any) error }) (domain.ProjectPlan, error) {
	var p domain.ProjectPlan
	var createdAt string
	if err := row.Scan(&p.ID, &p.ProjectName, &p.ProjectSummary, &p.Plan, &p.GeneratedBy,
		&p.DurationWeeks, &p.StartWeek, &p.ModelUsed, &p.TokensUsed, &createdAt); err != nil {
		return domain.ProjectPlan{}, err
	}
	t, err := parseTime(createdAt, "project_plans.created_at")
	if err != nil {
		return domain.ProjectPlan{}, err
	}
	p.CreatedAt = t
	return p, nil
}

const projectPlanCols = "id, project_name, project_summary, plan, generated_by, duration_weeks, start_week, model_used, tokens_used, created_at"

// GetProjectPlan returns the plan with the given id, or the most recent plan
// if id is nil.
func (s *Store) GetProjectPlan(id *int) (domain.ProjectPlan, bool, error) {
	var row *sql.Row
	if id != nil {
		row = s.db.QueryRow("SELECT "+projectPlanCols+" FROM project_plans WHERE id = ?", *id)
	} else {
		row = s.db.QueryRow("SELECT " + projectPlanCols + " FROM project_plans ORDER BY id DESC LIMIT 1")
	}
	p, err := scanProjectPlan(row)
	if err == sql.ErrNoRows {
		return domain.ProjectPlan{}, false, nil
	}
	if err != nil {
		return domain.ProjectPlan{}, false, fmt.Errorf("store: get project plan: %w", err)
	}
	return p, true, nil
}

// GetActiveProjectsForPerson returns the union of (projects explicitly
// assigned to personID, active in week) and (unassigned/team-wide projects
// active in week), ordered by start_week, per spec.md §4.4.
func (s *Store) GetActiveProjectsForPerson(personID, week int) ([]domain.ProjectPlan, error) {
	rows, err := s.db.Query(`
		SELECT `+projectPlanCols+` FROM project_plans pp
		INNER JOIN project_assignments pa ON pp.id = pa.project_id
		WHERE pa.person_id = ? AND pp.start_week <= ? AND (pp.start_week + pp.duration_weeks - 1) >= ?
		ORDER BY pp.start_week ASC
	`, personID, week, week)
	if err != nil {
		return nil, fmt.Errorf("store: active projects assigned: %w", err)
	}
	assigned := make(map[int]bool)
	var out []domain.ProjectPlan
	for rows.Next() {
		p, err := scanProjectPlan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan active assigned project: %w", err)
		}
		assigned[p.ID] = true
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`
		SELECT `+projectPlanCols+` FROM project_plans pp
		WHERE pp.id NOT IN (SELECT DISTINCT project_id FROM project_assignments)
		AND pp.start_week <= ? AND (pp.start_week + pp.duration_weeks - 1) >= ?
		ORDER BY pp.start_week ASC
	`, week, week)
	if err != nil {
		return nil, fmt.Errorf("store: active projects unassigned: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProjectPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan active unassigned project: %w", err)
		}
		if !assigned[p.ID] {
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartWeek < out[j].StartWeek })
	return out, nil
}

// GetAllProjectsActiveInWeek returns every project active in week, regardless of assignment.
func (s *Store) GetAllProjectsActiveInWeek(week int) ([]domain.ProjectPlan, error) {
	rows, err := s.db.Query(`
		SELECT `+projectPlanCols+` FROM project_plans
		WHERE start_week <= ? AND (start_week + duration_weeks - 1) >= ?
		ORDER BY start_week ASC
	`, week, week)
	if err != nil {
		return nil, fmt.Errorf("store: active projects in week: %w", err)
	}
	defer rows.Close()
	var out []domain.ProjectPlan
	for rows.Next() {
		p, err := scanProjectPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan active project in week: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProjectsStartingAfterWeek returns every project whose start_week is strictly after week.
func (s *Store) GetProjectsStartingAfterWeek(week int) ([]domain.ProjectPlan, error) {
	rows, err := s.db.Query("SELECT "+projectPlanCols+" FROM project_plans WHERE start_week > ? ORDER BY start_week", week)
	if err != nil {
		return nil, fmt.Errorf("store: projects starting after week: %w", err)
	}
	defer rows.Close()
	var out []domain.ProjectPlan
	for rows.Next() {
		p, err := scanProjectPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan project starting after week: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AssignedPersonIDsForProject returns the explicit assignment rows for a project.
func (s *Store) AssignedPersonIDsForProject(projectID int) ([]int, error) {
	rows, err := s.db.Query("SELECT person_id FROM project_assignments WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("store: assigned person ids: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan assigned person id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListAllProjects returns every project plan, oldest first.
func (s *Store) ListAllProjects() ([]domain.ProjectPlan, error) {
	rows, err := s.db.Query("SELECT " + projectPlanCols + " FROM project_plans ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list all projects: %w", err)
	}
	defer rows.Close()
	var out []domain.ProjectPlan
	for rows.Next() {
		p, err := scanProjectPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateProjectChatRoomRecord records a newly created chat room for a project.
func (s *Store) CreateProjectChatRoomRecord(projectID int, slug, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO project_chat_rooms(project_id, room_slug, room_name, is_active, created_at)
		VALUES (?, ?, ?, 1, ?)
	`, projectID, slug, name, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: create project chat room record: %w", err)
	}
	return nil
}

// GetActiveProjectChatRoom returns the active room slug for projectID, if any.
func (s *Store) GetActiveProjectChatRoom(projectID int) (string, bool, error) {
	var slug string
	err := s.db.QueryRow(`
		SELECT room_slug FROM project_chat_rooms WHERE project_id = ? AND is_active = 1
		ORDER BY created_at DESC LIMIT 1
	`, projectID).Scan(&slug)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get active chat room: %w", err)
	}
	return slug, true, nil
}

// ArchiveProjectChatRoom marks the active chat room for projectID archived; idempotent.
func (s *Store) ArchiveProjectChatRoom(projectID int) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE project_chat_rooms SET is_active = 0, archived_at = ? WHERE project_id = ? AND is_active = 1
	`, formatTime(time.Now()), projectID)
	if err != nil {
		return false, fmt.Errorf("store: archive chat room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: archive chat room rows affected: %w", err)
	}
	return n > 0, nil
}

// ListActiveProjectIDsWithRooms returns project IDs that currently have an active chat room.
func (s *Store) ListActiveProjectIDsWithRooms() ([]int, error) {
	rows, err := s.db.Query("SELECT DISTINCT project_id FROM project_chat_rooms WHERE is_active = 1")
	if err != nil {
		return nil, fmt.Errorf("store: list active rooms: %w", err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan active room project id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
