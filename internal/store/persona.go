package store

import (
	"database/sql"
	"fmt"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// CreatePersona inserts a new persona, created once via the admin API per
// spec.md §3.
func (s *Store) CreatePersona(p domain.Persona) (int, error) {
	res, err := s.db.Exec(`
		INSERT INTO people(
			name, role, timezone, email_address, chat_handle, work_hours, break_frequency,
			communication_style, skills, personality, objectives, metrics,
			planning_guidelines, event_playbook, status_vocabulary, markdown_profile, is_department_head
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Role, p.Timezone, p.EmailAddress, p.ChatHandle, p.WorkHours, p.BreakFrequency,
		p.CommunicationStyle, p.Skills, p.Personality, p.Objectives, p.Metrics,
		p.PlanningGuidelines, p.EventPlaybook, p.StatusVocabulary, p.MarkdownProfile, boolToInt(p.IsDepartmentHead))
	if err != nil {
		return 0, fmt.Errorf("store: create persona: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: create persona id: %w", err)
	}
	return int(id), nil
}

// UpdatePersona overwrites every mutable field of the persona identified by p.ID.
func (s *Store) UpdatePersona(p domain.Persona) error {
	_, err := s.db.Exec(`
		UPDATE people SET
			role = ?, timezone = ?, email_address = ?, chat_handle = ?, work_hours = ?, break_frequency = ?,
			communication_style = ?, skills = ?, personality = ?, objectives = ?, metrics = ?,
			planning_guidelines = ?, event_playbook = ?, status_vocabulary = ?, markdown_profile = ?,
			is_department_head = ?
		WHERE id = ?
	`, p.Role, p.Timezone, p.EmailAddress, p.ChatHandle, p.WorkHours, p.BreakFrequency,
		p.CommunicationStyle, p.Skills, p.Personality, p.Objectives, p.Metrics,
		p.PlanningGuidelines, p.EventPlaybook, p.StatusVocabulary, p.MarkdownProfile,
		boolToInt(p.IsDepartmentHead), p.ID)
	if err != nil {
		return fmt.Errorf("store: update persona: %w", err)
	}
	return nil
}

// DeletePersonaByName deletes a persona by its unique name.
func (s *Store) DeletePersonaByName(name string) error {
	_, err := s.db.Exec("DELETE FROM people WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("store: delete persona: %w", err)
	}
	return nil
}

// ListPersonas returns every persona, ordered by id.
func (s *Store) ListPersonas() ([]domain.Persona, error) {
	rows, err := s.db.Query(`
		SELECT id, name, role, timezone, email_address, chat_handle, work_hours, break_frequency,
			communication_style, skills, personality, objectives, metrics,
			planning_guidelines, event_playbook, status_vocabulary, markdown_profile, is_department_head
		FROM people ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list personas: %w", err)
	}
	defer rows.Close()

	var out []domain.Persona
	for rows.Next() {
		var p domain.Persona
		var isHead int
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &p.Timezone, &p.EmailAddress, &p.ChatHandle,
			&p.WorkHours, &p.BreakFrequency, &p.CommunicationStyle, &p.Skills, &p.Personality,
			&p.Objectives, &p.Metrics, &p.PlanningGuidelines, &p.EventPlaybook, &p.StatusVocabulary,
			&p.MarkdownProfile, &isHead); err != nil {
			return nil, fmt.Errorf("store: scan persona: %w", err)
		}
		p.IsDepartmentHead = isHead != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPersonaByName returns a single persona by its unique name.
func (s *Store) GetPersonaByName(name string) (domain.Persona, bool, error) {
	var p domain.Persona
	var isHead int
	err := s.db.QueryRow(`
		SELECT id, name, role, timezone, email_address, chat_handle, work_hours, break_frequency,
			communication_style, skills, personality, objectives, metrics,
			planning_guidelines, event_playbook, status_vocabulary, markdown_profile, is_department_head
		FROM people WHERE name = ?
	`, name).Scan(&p.ID, &p.Name, &p.Role, &p.Timezone, &p.EmailAddress, &p.ChatHandle,
		&p.WorkHours, &p.BreakFrequency, &p.CommunicationStyle, &p.Skills, &p.Personality,
		&p.Objectives, &p.Metrics, &p.PlanningGuidelines, &p.EventPlaybook, &p.StatusVocabulary,
		&p.MarkdownProfile, &isHead)
	if err == sql.ErrNoRows {
		return domain.Persona{}, false, nil
	}
	if err != nil {
		return domain.Persona{}, false, fmt.Errorf("store: get persona by name: %w", err)
	}
	p.IsDepartmentHead = isHead != 0
	return p, true, nil
}

// UpsertScheduleBlock inserts or replaces a schedule block.
func (s *Store) UpsertScheduleBlock(b domain.ScheduleBlock) error {
	_, err := s.db.Exec(`
		INSERT INTO schedule_blocks(person_id, day_index, start_tick, end_tick, label)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(person_id, day_index, start_tick) DO UPDATE SET end_tick = excluded.end_tick, label = excluded.label
	`, b.PersonID, b.DayIndex, b.StartTick, b.EndTick, b.Label)
	if err != nil {
		return fmt.Errorf("store: upsert schedule block: %w", err)
	}
	return nil
}

// ListScheduleBlocksForPersonDay returns a persona's schedule blocks for one day, ordered by start tick.
func (s *Store) ListScheduleBlocksForPersonDay(personID, dayIndex int) ([]domain.ScheduleBlock, error) {
	rows, err := s.db.Query(`
		SELECT person_id, day_index, start_tick, end_tick, label FROM schedule_blocks
		WHERE person_id = ? AND day_index = ? ORDER BY start_tick
	`, personID, dayIndex)
	if err != nil {
		return nil, fmt.Errorf("store: list schedule blocks: %w", err)
	}
	defer rows.Close()

	var out []domain.ScheduleBlock
	for rows.Next() {
		var b domain.ScheduleBlock
		if err := rows.Scan(&b.PersonID, &b.DayIndex, &b.StartTick, &b.EndTick, &b.Label); err != nil {
			return nil, fmt.Errorf("store: scan schedule block: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
