package store

// schema is executed once at open time, mirroring the teacher's
// schema-as-const-string convention (internal/repository/sqlite/store.go).
const schema = `
CREATE TABLE IF NOT EXISTS people (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL DEFAULT '',
	timezone TEXT NOT NULL DEFAULT '',
	email_address TEXT NOT NULL DEFAULT '',
	chat_handle TEXT NOT NULL DEFAULT '',
	work_hours TEXT NOT NULL DEFAULT '09:00-17:00',
	break_frequency TEXT NOT NULL DEFAULT '',
	communication_style TEXT NOT NULL DEFAULT '',
	skills TEXT NOT NULL DEFAULT '',
	personality TEXT NOT NULL DEFAULT '',
	objectives TEXT NOT NULL DEFAULT '',
	metrics TEXT NOT NULL DEFAULT '',
	planning_guidelines TEXT NOT NULL DEFAULT '',
	event_playbook TEXT NOT NULL DEFAULT '',
	status_vocabulary TEXT NOT NULL DEFAULT '',
	markdown_profile TEXT NOT NULL DEFAULT '',
	is_department_head INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS schedule_blocks (
	person_id INTEGER NOT NULL,
	day_index INTEGER NOT NULL,
	start_tick INTEGER NOT NULL,
	end_tick INTEGER NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (person_id, day_index, start_tick)
);
CREATE TABLE IF NOT EXISTS simulation_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	current_tick INTEGER NOT NULL DEFAULT 0,
	is_running INTEGER NOT NULL DEFAULT 0,
	auto_tick INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS tick_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tick INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	target_ids TEXT NOT NULL DEFAULT '[]',
	project_id INTEGER NOT NULL DEFAULT 0,
	at_tick INTEGER NOT NULL DEFAULT 0,
	payload TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS project_plans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_name TEXT NOT NULL,
	project_summary TEXT NOT NULL DEFAULT '',
	plan TEXT NOT NULL DEFAULT '',
	generated_by INTEGER NOT NULL DEFAULT 0,
	duration_weeks INTEGER NOT NULL DEFAULT 1,
	start_week INTEGER NOT NULL DEFAULT 1,
	model_used TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS project_assignments (
	project_id INTEGER NOT NULL,
	person_id INTEGER NOT NULL,
	PRIMARY KEY (project_id, person_id)
);
CREATE TABLE IF NOT EXISTS project_chat_rooms (
	project_id INTEGER NOT NULL,
	room_slug TEXT NOT NULL,
	room_name TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	archived_at TEXT
);
CREATE TABLE IF NOT EXISTS worker_plans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	plan_type TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	model_used TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	context TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (person_id, tick, plan_type)
);
CREATE TABLE IF NOT EXISTS hourly_summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id INTEGER NOT NULL,
	hour_index INTEGER NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (person_id, hour_index)
);
CREATE TABLE IF NOT EXISTS daily_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	person_id INTEGER NOT NULL,
	day_index INTEGER NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE (person_id, day_index)
);
CREATE TABLE IF NOT EXISTS simulation_reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	as_of_tick INTEGER NOT NULL,
	persona_count INTEGER NOT NULL DEFAULT 0,
	project_count INTEGER NOT NULL DEFAULT 0,
	emails_sent INTEGER NOT NULL DEFAULT 0,
	chats_sent INTEGER NOT NULL DEFAULT 0,
	ticks_advanced INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS worker_runtime_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	recipient_id INTEGER NOT NULL,
	sender_id INTEGER NOT NULL DEFAULT 0,
	sender_name TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	action_item TEXT NOT NULL DEFAULT '',
	message_type TEXT NOT NULL DEFAULT 'update',
	channel TEXT NOT NULL DEFAULT 'system',
	tick INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS worker_exchange_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tick INTEGER NOT NULL,
	sender_id INTEGER NOT NULL DEFAULT 0,
	recipient_id INTEGER NOT NULL DEFAULT 0,
	channel TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	sent_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS worker_status_overrides (
	worker_id INTEGER PRIMARY KEY,
	status TEXT NOT NULL,
	until_tick INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT ''
);
`

const indexes = `
CREATE INDEX IF NOT EXISTS idx_worker_plans_person_tick ON worker_plans(person_id, tick);
CREATE INDEX IF NOT EXISTS idx_tick_log_tick ON tick_log(tick);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
CREATE INDEX IF NOT EXISTS idx_runtime_msgs_recipient ON worker_runtime_messages(recipient_id, id);
CREATE INDEX IF NOT EXISTS idx_exchange_log_tick ON worker_exchange_log(tick);
CREATE INDEX IF NOT EXISTS idx_exchange_log_sent_at ON worker_exchange_log(sent_at);
CREATE INDEX IF NOT EXISTS idx_project_assignments_project ON project_assignments(project_id);
CREATE INDEX IF NOT EXISTS idx_project_assignments_person ON project_assignments(person_id);
`

// runMigrations applies idempotent schema changes for databases created by
// earlier versions of this module. Errors are ignored, matching the
// teacher's runMigrations convention: most failures here mean the column or
// table already exists.
func runMigrations(exec execer) {
	_, _ = exec.Exec("ALTER TABLE people ADD COLUMN markdown_profile TEXT NOT NULL DEFAULT ''")
	_, _ = exec.Exec("ALTER TABLE worker_plans ADD COLUMN context TEXT NOT NULL DEFAULT ''")
}
