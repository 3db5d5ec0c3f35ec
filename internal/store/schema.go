package store

// migrations holds one SQL script per schema version; applying
// migrations[n] brings the database to version n+1. Append only,
// never edit a shipped entry.
var migrations = []string{
	`
-- Derived state of one coding-agent session.
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	format             TEXT    NOT NULL,
	project_path       TEXT    NOT NULL DEFAULT '',
	branch             TEXT    NOT NULL DEFAULT '',
	model              TEXT    NOT NULL DEFAULT '',
	name               TEXT    NOT NULL DEFAULT '',
	first_prompt       TEXT    NOT NULL DEFAULT '',
	work_status        TEXT    NOT NULL DEFAULT 'unknown',
	attention_reason   TEXT    NOT NULL DEFAULT 'none',
	pending_tool_name  TEXT    NOT NULL DEFAULT '',
	pending_tool_input TEXT    NOT NULL DEFAULT '',
	pending_question   TEXT    NOT NULL DEFAULT '',
	last_tool          TEXT    NOT NULL DEFAULT '',
	prompt_count       INTEGER NOT NULL DEFAULT 0,
	tool_count         INTEGER NOT NULL DEFAULT 0,
	total_tokens       INTEGER NOT NULL DEFAULT 0,
	started_at         TEXT    NOT NULL,
	last_activity_at   TEXT    NOT NULL,
	ended_at           TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);
CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_at);

-- Ordered message history derived from transcripts. sequence is assigned
-- at parse time and is the stable sort key.
CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	session_id       TEXT    NOT NULL,
	type             TEXT    NOT NULL,
	content          TEXT    NOT NULL DEFAULT '',
	timestamp        TEXT    NOT NULL,
	sequence         INTEGER NOT NULL,
	tool_name        TEXT    NOT NULL DEFAULT '',
	tool_input       TEXT    NOT NULL DEFAULT '',
	tool_output      TEXT    NOT NULL DEFAULT '',
	tool_duration_ms INTEGER,
	input_tokens     INTEGER,
	output_tokens    INTEGER,
	images           TEXT    NOT NULL DEFAULT '',
	in_progress      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, sequence);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);

-- Key-value store for daemon metadata (schema version, tail cursors, etc).
CREATE TABLE IF NOT EXISTS daemon_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
`,
}
