package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// UpsertWorkerPlan writes a daily or hourly plan with exact-tick UPSERT
// semantics, per spec.md §3 ("Writes are UPSERT with exact-tick match for
// idempotence").
func (s *Store) UpsertWorkerPlan(p domain.WorkerPlan) (domain.WorkerPlan, error) {
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO worker_plans(person_id, tick, plan_type, content, model_used, tokens_used, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id, tick, plan_type) DO UPDATE SET
			content = excluded.content, model_used = excluded.model_used,
			tokens_used = excluded.tokens_used, context = excluded.context
	`, p.PersonID, p.Tick, string(p.PlanType), p.Content, p.ModelUsed, p.TokensUsed, p.Context, formatTime(now))
	if err != nil {
		return domain.WorkerPlan{}, fmt.Errorf("store: upsert worker plan: %w", err)
	}
	stored, ok, err := s.GetWorkerPlan(p.PersonID, p.Tick, p.PlanType)
	if err != nil {
		return domain.WorkerPlan{}, err
	}
	if !ok {
		return domain.WorkerPlan{}, fmt.Errorf("store: upsert worker plan: row missing after insert")
	}
	return stored, nil
}

// BatchUpsertWorkerPlans persists multiple plans in one transaction,
// preserving input order, per spec.md §4.8 ("Batch-persist all hourly plans
// generated this tick").
func (s *Store) BatchUpsertWorkerPlans(plans []domain.WorkerPlan) error {
	if len(plans) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: batch upsert begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	for _, p := range plans {
		if _, err := tx.Exec(`
			INSERT INTO worker_plans(person_id, tick, plan_type, content, model_used, tokens_used, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(person_id, tick, plan_type) DO UPDATE SET
				content = excluded.content, model_used = excluded.model_used,
				tokens_used = excluded.tokens_used, context = excluded.context
		`, p.PersonID, p.Tick, string(p.PlanType), p.Content, p.ModelUsed, p.TokensUsed, p.Context, now); err != nil {
			return fmt.Errorf("store: batch upsert worker plan: %w", err)
		}
	}
	return tx.Commit()
}

// GetWorkerPlan returns the plan for (personID, tick, planType), if present.
func (s *Store) GetWorkerPlan(personID, tick int, planType domain.PlanType) (domain.WorkerPlan, bool, error) {
	var p domain.WorkerPlan
	var createdAt string
	p.PlanType = planType
	err := s.db.QueryRow(`
		SELECT id, person_id, tick, content, model_used, tokens_used, context, created_at
		FROM worker_plans WHERE person_id = ? AND tick = ? AND plan_type = ?
	`, personID, tick, string(planType)).Scan(&p.ID, &p.PersonID, &p.Tick, &p.Content, &p.ModelUsed, &p.TokensUsed, &p.Context, &createdAt)
	if err == sql.ErrNoRows {
		return domain.WorkerPlan{}, false, nil
	}
	if err != nil {
		return domain.WorkerPlan{}, false, fmt.Errorf("store: get worker plan: %w", err)
	}
	t, err := parseTime(createdAt, "worker_plans.created_at")
	if err != nil {
		return domain.WorkerPlan{}, false, err
	}
	p.CreatedAt = t
	return p, true, nil
}

// ListHourlyPlansInRange returns a persona's hourly plans with tick in
// [fromTick, toTick], ordered by tick.
func (s *Store) ListHourlyPlansInRange(personID, fromTick, toTick int) ([]domain.WorkerPlan, error) {
	rows, err := s.db.Query(`
		SELECT id, person_id, tick, content, model_used, tokens_used, context, created_at
		FROM worker_plans WHERE person_id = ? AND plan_type = 'hourly' AND tick BETWEEN ? AND ?
		ORDER BY tick
	`, personID, fromTick, toTick)
	if err != nil {
		return nil, fmt.Errorf("store: list hourly plans in range: %w", err)
	}
	defer rows.Close()
	var out []domain.WorkerPlan
	for rows.Next() {
		var p domain.WorkerPlan
		var createdAt string
		p.PlanType = domain.PlanTypeHourly
		if err := rows.Scan(&p.ID, &p.PersonID, &p.Tick, &p.Content, &p.ModelUsed, &p.TokensUsed, &p.Context, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan hourly plan: %w", err)
		}
		t, err := parseTime(createdAt, "worker_plans.created_at")
		if err != nil {
			return nil, err
		}
		p.CreatedAt = t
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertHourlySummary writes one row per (person, hour), per spec.md §3.
func (s *Store) UpsertHourlySummary(sum domain.HourlySummary) error {
	_, err := s.db.Exec(`
		INSERT INTO hourly_summaries(person_id, hour_index, content, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(person_id, hour_index) DO UPDATE SET content = excluded.content
	`, sum.PersonID, sum.HourIndex, sum.Content, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: upsert hourly summary: %w", err)
	}
	return nil
}

// GetHourlySummary returns the summary for (personID, hourIndex), if present.
func (s *Store) GetHourlySummary(personID, hourIndex int) (domain.HourlySummary, bool, error) {
	var sum domain.HourlySummary
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, person_id, hour_index, content, created_at FROM hourly_summaries
		WHERE person_id = ? AND hour_index = ?
	`, personID, hourIndex).Scan(&sum.ID, &sum.PersonID, &sum.HourIndex, &sum.Content, &createdAt)
	if err == sql.ErrNoRows {
		return domain.HourlySummary{}, false, nil
	}
	if err != nil {
		return domain.HourlySummary{}, false, fmt.Errorf("store: get hourly summary: %w", err)
	}
	t, err := parseTime(createdAt, "hourly_summaries.created_at")
	if err != nil {
		return domain.HourlySummary{}, false, err
	}
	sum.CreatedAt = t
	return sum, true, nil
}

// UpsertDailyReport writes one row per (person, day), per spec.md §3.
func (s *Store) UpsertDailyReport(r domain.DailyReport) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_reports(person_id, day_index, content, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(person_id, day_index) DO UPDATE SET content = excluded.content
	`, r.PersonID, r.DayIndex, r.Content, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: upsert daily report: %w", err)
	}
	return nil
}

// GetDailyReport returns the report for (personID, dayIndex), if present.
func (s *Store) GetDailyReport(personID, dayIndex int) (domain.DailyReport, bool, error) {
	var r domain.DailyReport
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, person_id, day_index, content, created_at FROM daily_reports
		WHERE person_id = ? AND day_index = ?
	`, personID, dayIndex).Scan(&r.ID, &r.PersonID, &r.DayIndex, &r.Content, &createdAt)
	if err == sql.ErrNoRows {
		return domain.DailyReport{}, false, nil
	}
	if err != nil {
		return domain.DailyReport{}, false, fmt.Errorf("store: get daily report: %w", err)
	}
	t, err := parseTime(createdAt, "daily_reports.created_at")
	if err != nil {
		return domain.DailyReport{}, false, err
	}
	r.CreatedAt = t
	return r, true, nil
}

// InsertSimulationReport persists a read-only rollup, per SPEC_FULL.md §5.
func (s *Store) InsertSimulationReport(r domain.SimulationReport) error {
	_, err := s.db.Exec(`
		INSERT INTO simulation_reports(as_of_tick, persona_count, project_count, emails_sent, chats_sent, ticks_advanced, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.AsOfTick, r.PersonaCount, r.ProjectCount, r.EmailsSent, r.ChatsSent, r.TicksAdvanced, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("store: insert simulation report: %w", err)
	}
	return nil
}
