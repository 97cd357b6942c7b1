package store

import (
	"encoding/json"
	"fmt"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// InsertEvent stores a write-once event and returns it with its assigned ID.
func (s *Store) InsertEvent(e domain.Event) (domain.Event, error) {
	targetIDs, err := json.Marshal(e.TargetIDs)
	if err != nil {
		return domain.Event{}, fmt.Errorf("store: marshal target ids: %w", err)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("store: marshal event payload: %w", err)
	}
	res, err := s.db.Exec(`
		INSERT INTO events(type, target_ids, project_id, at_tick, payload) VALUES (?, ?, ?, ?, ?)
	`, e.Type, string(targetIDs), e.ProjectID, e.AtTick, string(payload))
	if err != nil {
		return domain.Event{}, fmt.Errorf("store: insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Event{}, fmt.Errorf("store: insert event id: %w", err)
	}
	e.ID = int(id)
	return e, nil
}

func scanEvent(row interface{ Scan(...any) error }) (domain.Event, error) {
	var e domain.Event
	var targetIDs, payload string
	if err := row.Scan(&e.ID, &e.Type, &targetIDs, &e.ProjectID, &e.AtTick, &payload); err != nil {
		return domain.Event{}, err
	}
	if targetIDs != "" {
		if err := json.Unmarshal([]byte(targetIDs), &e.TargetIDs); err != nil {
			return domain.Event{}, fmt.Errorf("store: unmarshal target ids: %w", err)
		}
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return domain.Event{}, fmt.Errorf("store: unmarshal event payload: %w", err)
		}
	}
	return e, nil
}

// ListEvents lists events, optionally filtered by project or target person.
func (s *Store) ListEvents(projectID *int, targetID *int) ([]domain.Event, error) {
	query := "SELECT id, type, target_ids, project_id, at_tick, payload FROM events"
	var conds []string
	var args []any
	if projectID != nil {
		conds = append(conds, "project_id = ?")
		args = append(args, *projectID)
	}
	if targetID != nil {
		conds = append(conds, "(',' || trim(target_ids, '[]') || ',') LIKE ?")
		args = append(args, fmt.Sprintf("%%,%d,%%", *targetID))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
