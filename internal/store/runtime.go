package store

import (
	"fmt"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// QueueMessage persists an inbox message atomically and returns its assigned
// storage id, per spec.md §4.3 ("queueMessage persists the message atomically
// before returning; the assigned storage id is written back").
func (s *Store) QueueMessage(m domain.InboundMessage) (int, error) {
	res, err := s.db.Exec(`
		INSERT INTO worker_runtime_messages(recipient_id, sender_id, sender_name, subject, summary, action_item, message_type, channel, tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.RecipientID, m.SenderID, m.SenderName, m.Subject, m.Summary, m.ActionItem, string(m.MessageType), string(m.Channel), m.Tick)
	if err != nil {
		return 0, fmt.Errorf("store: queue message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: queue message id: %w", err)
	}
	return int(id), nil
}

// DrainMessages returns every queued message for recipientID in FIFO
// (insertion) order, per spec.md §4.3 and invariant 5 ("Inbox messages are
// FIFO per recipient"). Rows are not deleted here; callers must call
// RemoveMessages with the returned IDs once consumed.
func (s *Store) DrainMessages(recipientID int) ([]domain.InboundMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, recipient_id, sender_id, sender_name, subject, summary, action_item, message_type, channel, tick
		FROM worker_runtime_messages WHERE recipient_id = ? ORDER BY id
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("store: drain messages: %w", err)
	}
	defer rows.Close()
	var out []domain.InboundMessage
	for rows.Next() {
		var m domain.InboundMessage
		var msgType, channel string
		if err := rows.Scan(&m.ID, &m.RecipientID, &m.SenderID, &m.SenderName, &m.Subject, &m.Summary, &m.ActionItem, &msgType, &channel, &m.Tick); err != nil {
			return nil, fmt.Errorf("store: scan inbound message: %w", err)
		}
		m.MessageType = domain.MessageType(msgType)
		m.Channel = domain.Channel(channel)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RemoveMessages deletes the given inbox message rows.
func (s *Store) RemoveMessages(ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: remove messages begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range ids {
		if _, err := tx.Exec("DELETE FROM worker_runtime_messages WHERE id = ?", id); err != nil {
			return fmt.Errorf("store: remove message %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// ClearAllMessages deletes every queued inbox message; used on full reset.
func (s *Store) ClearAllMessages() error {
	_, err := s.db.Exec("DELETE FROM worker_runtime_messages")
	if err != nil {
		return fmt.Errorf("store: clear all messages: %w", err)
	}
	return nil
}
