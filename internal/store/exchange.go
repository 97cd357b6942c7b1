package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// LogExchange records one accepted dispatch, fallback comm, or event-driven
// send. Supplemented from original_source/.../communication_hub.py's
// _log_exchange calls; satisfies invariant 4 of spec.md §8.
func (s *Store) LogExchange(e domain.WorkerExchangeLog) error {
	_, err := s.db.Exec(`
		INSERT INTO worker_exchange_log(tick, sender_id, recipient_id, channel, subject, body, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Tick, e.SenderID, e.RecipientID, string(e.Channel), e.Subject, e.Body, formatTime(e.SentAt))
	if err != nil {
		return fmt.Errorf("store: log exchange: %w", err)
	}
	return nil
}

// MaxExchangeTick returns the highest tick recorded in the exchange log, or
// 0 if the log is empty; used to refuse jumpToTick(T) past what was
// actually generated.
func (s *Store) MaxExchangeTick() (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(tick) FROM worker_exchange_log").Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max exchange tick: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

// ListExchangesForReplay returns every exchange whose sent_at falls at or
// before simDatetime, the read-only replay view of spec.md §4.8.
func (s *Store) ListExchangesForReplay(simDatetime time.Time) ([]domain.WorkerExchangeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, tick, sender_id, recipient_id, channel, subject, body, sent_at
		FROM worker_exchange_log WHERE sent_at <= ? ORDER BY tick, id
	`, formatTime(simDatetime))
	if err != nil {
		return nil, fmt.Errorf("store: list exchanges for replay: %w", err)
	}
	defer rows.Close()
	var out []domain.WorkerExchangeLog
	for rows.Next() {
		var e domain.WorkerExchangeLog
		var channel, sentAt string
		if err := rows.Scan(&e.ID, &e.Tick, &e.SenderID, &e.RecipientID, &channel, &e.Subject, &e.Body, &sentAt); err != nil {
			return nil, fmt.Errorf("store: scan exchange: %w", err)
		}
		e.Channel = domain.Channel(channel)
		t, err := parseTime(sentAt, "worker_exchange_log.sent_at")
		if err != nil {
			return nil, err
		}
		e.SentAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountExchangesSince returns (emailsSent, chatsSent) counts for exchanges
// recorded at tick >= sinceTick; used by GenerateSimulationReport.
func (s *Store) CountExchangesSince(sinceTick int) (emails, chats int, err error) {
	err = s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN channel = 'email' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN channel = 'chat' THEN 1 ELSE 0 END), 0)
		FROM worker_exchange_log WHERE tick >= ?
	`, sinceTick).Scan(&emails, &chats)
	if err != nil {
		return 0, 0, fmt.Errorf("store: count exchanges since: %w", err)
	}
	return emails, chats, nil
}
