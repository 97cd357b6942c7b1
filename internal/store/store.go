// Package store is the State Store (C1): durable row-oriented persistence
// for personas, projects, plans, reports, events, tick log, and simulation
// counters, via modernc.org/sqlite in WAL mode. Grounded on the teacher's
// internal/repository/sqlite/store.go idioms (schema-as-string, migrations,
// RFC3339Nano timestamps, JSON-encoded array columns) but exposes narrow
// per-operation SQL methods rather than a whole-aggregate Load/Save, since
// advance() runs every tick (see SPEC_FULL.md §6.1).
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Store is the SQLite-backed State Store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema and migrations are applied. path may be ":memory:" for tests
// that don't need WAL durability.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
			}
		}
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: schema: %w", err)
	}
	if _, err := s.db.Exec(indexes); err != nil {
		return fmt.Errorf("store: indexes: %w", err)
	}
	runMigrations(s.db)
	if _, err := s.db.Exec("INSERT OR IGNORE INTO simulation_state(id, current_tick, is_running, auto_tick) VALUES (1, 0, 0, 0)"); err != nil {
		return fmt.Errorf("store: seed simulation_state: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// HardReset drops and recreates the entire schema. Must be called while the
// tick scheduler is stopped, per spec.md §4.1.
func (s *Store) HardReset() error {
	if s.path == ":memory:" {
		return s.dropAllTables()
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: hard reset close: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: hard reset remove: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(s.path + suffix)
	}
	db, err := sql.Open("sqlite", s.path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return fmt.Errorf("store: hard reset reopen: %w", err)
	}
	s.db = db
	return s.ensureSchema()
}

func (s *Store) dropAllTables() error {
	tables := []string{
		"people", "schedule_blocks", "simulation_state", "tick_log", "events",
		"project_plans", "project_assignments", "project_chat_rooms",
		"worker_plans", "hourly_summaries", "daily_reports", "simulation_reports",
		"worker_runtime_messages", "worker_exchange_log", "worker_status_overrides",
	}
	for _, t := range tables {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("store: drop %s: %w", t, err)
		}
	}
	return s.ensureSchema()
}

// --- time helpers, mirroring the teacher's parseTime/isNoSuchTableErr ---

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s, context string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: parse timestamp %q: %w", context, s, err)
	}
	return t, nil
}

func isNoSuchTableErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// --- Simulation state (C1) ---

// GetSimulationState returns the singleton simulation state row.
func (s *Store) GetSimulationState() (domain.SimulationState, error) {
	var st domain.SimulationState
	var running, auto int
	err := s.db.QueryRow("SELECT current_tick, is_running, auto_tick FROM simulation_state WHERE id = 1").
		Scan(&st.CurrentTick, &running, &auto)
	if err != nil {
		return domain.SimulationState{}, fmt.Errorf("store: get simulation state: %w", err)
	}
	st.IsRunning = running != 0
	st.AutoTick = auto != 0
	return st, nil
}

// SetTick advances current_tick and appends a tick_log row atomically, per
// spec.md §4.1 ("setTick MUST append a row to the tick log atomically").
func (s *Store) SetTick(tick int, reason string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: set tick begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("UPDATE simulation_state SET current_tick = ? WHERE id = 1", tick); err != nil {
		return fmt.Errorf("store: set tick update: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO tick_log(tick, reason, created_at) VALUES (?, ?, ?)", tick, reason, formatTime(time.Now())); err != nil {
		return fmt.Errorf("store: set tick log: %w", err)
	}
	return tx.Commit()
}

// SetCurrentTick sets current_tick directly without a tick_log entry; used
// only by rewind, which rewrites tick_log separately.
func (s *Store) SetCurrentTick(tick int) error {
	_, err := s.db.Exec("UPDATE simulation_state SET current_tick = ? WHERE id = 1", tick)
	if err != nil {
		return fmt.Errorf("store: set current tick: %w", err)
	}
	return nil
}

// SetRunning sets the is_running flag.
func (s *Store) SetRunning(running bool) error {
	_, err := s.db.Exec("UPDATE simulation_state SET is_running = ? WHERE id = 1", boolToInt(running))
	if err != nil {
		return fmt.Errorf("store: set running: %w", err)
	}
	return nil
}

// SetAutoTick sets the auto_tick flag.
func (s *Store) SetAutoTick(auto bool) error {
	_, err := s.db.Exec("UPDATE simulation_state SET auto_tick = ? WHERE id = 1", boolToInt(auto))
	if err != nil {
		return fmt.Errorf("store: set auto tick: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Status overrides ---

// ListStatusOverrides returns every currently stored status override.
func (s *Store) ListStatusOverrides() ([]domain.WorkerStatusOverride, error) {
	rows, err := s.db.Query("SELECT worker_id, status, until_tick, reason FROM worker_status_overrides")
	if err != nil {
		return nil, fmt.Errorf("store: list status overrides: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkerStatusOverride
	for rows.Next() {
		var o domain.WorkerStatusOverride
		if err := rows.Scan(&o.WorkerID, &o.Status, &o.UntilTick, &o.Reason); err != nil {
			return nil, fmt.Errorf("store: scan status override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetStatusOverride upserts a status override for worker.
func (s *Store) SetStatusOverride(workerID int, status string, untilTick int, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO worker_status_overrides(worker_id, status, until_tick, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET status = excluded.status, until_tick = excluded.until_tick, reason = excluded.reason
	`, workerID, status, untilTick, reason)
	if err != nil {
		return fmt.Errorf("store: set status override: %w", err)
	}
	return nil
}

// ClearStatusOverride deletes worker's status override, if any.
func (s *Store) ClearStatusOverride(workerID int) error {
	_, err := s.db.Exec("DELETE FROM worker_status_overrides WHERE worker_id = ?", workerID)
	if err != nil {
		return fmt.Errorf("store: clear status override: %w", err)
	}
	return nil
}

// ExpireStatusOverrides clears every override whose until_tick <= currentTick
// and returns the affected worker IDs, per spec.md §3 ("When current_tick >=
// until_tick, the override is cleared").
func (s *Store) ExpireStatusOverrides(currentTick int) ([]int, error) {
	rows, err := s.db.Query("SELECT worker_id FROM worker_status_overrides WHERE until_tick <= ?", currentTick)
	if err != nil {
		return nil, fmt.Errorf("store: expire status overrides select: %w", err)
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: expire status overrides scan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.Exec("DELETE FROM worker_status_overrides WHERE until_tick <= ?", currentTick); err != nil {
		return nil, fmt.Errorf("store: expire status overrides delete: %w", err)
	}
	return ids, nil
}

// ClearAllStatusOverrides deletes every status override row; used by start
// and reset to clear stale SickLeave/etc. state from a prior run.
func (s *Store) ClearAllStatusOverrides() error {
	_, err := s.db.Exec("DELETE FROM worker_status_overrides")
	if err != nil {
		return fmt.Errorf("store: clear all status overrides: %w", err)
	}
	return nil
}

// --- Reset semantics (C1 contracts, invoked by the Engine Coordinator) ---

// ResetSimulation truncates derived tables. When preservePersonas is true,
// people and schedule_blocks are kept; otherwise they are truncated too.
func (s *Store) ResetSimulation(preservePersonas bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: reset begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	truncate := []string{
		"worker_plans", "hourly_summaries", "daily_reports", "simulation_reports",
		"events", "tick_log", "worker_runtime_messages", "worker_status_overrides",
		"project_assignments", "project_chat_rooms", "project_plans", "worker_exchange_log",
	}
	if !preservePersonas {
		truncate = append(truncate, "people", "schedule_blocks")
	}
	for _, t := range truncate {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			return fmt.Errorf("store: reset truncate %s: %w", t, err)
		}
	}
	if _, err := tx.Exec("UPDATE simulation_state SET current_tick = 0, is_running = 0, auto_tick = 0 WHERE id = 1"); err != nil {
		return fmt.Errorf("store: reset state row: %w", err)
	}
	return tx.Commit()
}

// --- Rewind support ---

// DeleteWorkerPlansAfter deletes worker_plans with tick > cutoff.
func (s *Store) DeleteWorkerPlansAfter(cutoff int) error {
	_, err := s.db.Exec("DELETE FROM worker_plans WHERE tick > ?", cutoff)
	return wrapErr(err, "delete worker plans after cutoff")
}

// DeleteHourlySummariesAfter deletes hourly_summaries with hour_index > cutoffHour.
func (s *Store) DeleteHourlySummariesAfter(cutoffHour int) error {
	_, err := s.db.Exec("DELETE FROM hourly_summaries WHERE hour_index > ?", cutoffHour)
	return wrapErr(err, "delete hourly summaries after cutoff")
}

// DeleteDailyReportsAfter deletes daily_reports with day_index > cutoffDay.
func (s *Store) DeleteDailyReportsAfter(cutoffDay int) error {
	_, err := s.db.Exec("DELETE FROM daily_reports WHERE day_index > ?", cutoffDay)
	return wrapErr(err, "delete daily reports after cutoff")
}

// DeleteExchangeLogAfter deletes worker_exchange_log rows with sent_at after cutoff.
func (s *Store) DeleteExchangeLogAfter(cutoff time.Time) error {
	_, err := s.db.Exec("DELETE FROM worker_exchange_log WHERE sent_at > ?", formatTime(cutoff))
	return wrapErr(err, "delete exchange log after cutoff")
}

// DeleteTickLogAfter deletes tick_log rows with tick > cutoff.
func (s *Store) DeleteTickLogAfter(cutoff int) error {
	_, err := s.db.Exec("DELETE FROM tick_log WHERE tick > ?", cutoff)
	return wrapErr(err, "delete tick log after cutoff")
}

// DeleteEventsAfter deletes events with at_tick > cutoff.
func (s *Store) DeleteEventsAfter(cutoff int) error {
	_, err := s.db.Exec("DELETE FROM events WHERE at_tick > ?", cutoff)
	return wrapErr(err, "delete events after cutoff")
}

func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("store: %s: %w", op, err)
}
