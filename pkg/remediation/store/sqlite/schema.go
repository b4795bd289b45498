package sqlite

import "database/sql"

// schemaVersion tracks the store's on-disk layout, mirroring the teacher's
// pkg/persistence single-integer schema_version convention.
const schemaVersion = 1

const createSchemaSQL = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS failures (
	id TEXT PRIMARY KEY,
	repository TEXT NOT NULL,
	branch TEXT NOT NULL,
	workflow_name TEXT NOT NULL,
	run_id INTEGER NOT NULL,
	commit_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	captured_logs TEXT NOT NULL,
	failure_reason TEXT NOT NULL,
	detected_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	terminal_reason TEXT,
	dedupe_key TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_failures_repository ON failures(repository, status);

CREATE TABLE IF NOT EXISTS analyses (
	failure_id TEXT PRIMARY KEY REFERENCES failures(id),
	error_type TEXT NOT NULL,
	category TEXT NOT NULL,
	risk_score INTEGER NOT NULL,
	confidence INTEGER NOT NULL,
	effort TEXT NOT NULL,
	proposed_fix TEXT NOT NULL,
	files_to_modify TEXT NOT NULL,
	fix_operations TEXT NOT NULL,
	reasoning TEXT NOT NULL,
	affected_components TEXT NOT NULL,
	model_id TEXT NOT NULL,
	response_latency_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS circuit_states (
	signature TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	failure_count INTEGER NOT NULL,
	last_failure_at TIMESTAMP NOT NULL,
	opened_at TIMESTAMP,
	auto_reset_at TIMESTAMP,
	history TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	repository TEXT NOT NULL,
	branch TEXT NOT NULL,
	error_signature TEXT NOT NULL,
	category TEXT NOT NULL,
	proposed_fix TEXT NOT NULL,
	files_modified TEXT NOT NULL,
	fix_commands TEXT NOT NULL,
	fix_successful INTEGER NOT NULL,
	resolution_time_ms INTEGER NOT NULL,
	embedding BLOB NOT NULL,
	embedding_family TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_patterns_repository ON patterns(repository, embedding_family);

CREATE TABLE IF NOT EXISTS personality_profiles (
	repository TEXT PRIMARY KEY,
	total_failures INTEGER NOT NULL,
	category_histogram TEXT NOT NULL,
	day_of_week_histogram TEXT NOT NULL,
	hour_histogram TEXT NOT NULL,
	flaky_rate REAL NOT NULL,
	avg_resolution_minutes REAL NOT NULL,
	success_rate REAL NOT NULL,
	detected_patterns TEXT NOT NULL,
	computed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	repository TEXT NOT NULL,
	remediation_id TEXT NOT NULL,
	branch TEXT NOT NULL,
	base_commit_sha TEXT NOT NULL,
	files TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_expires ON snapshots(status, expires_at);

CREATE TABLE IF NOT EXISTS health_checks (
	id TEXT PRIMARY KEY,
	remediation_id TEXT NOT NULL,
	snapshot_id TEXT NOT NULL,
	scheduled_at TIMESTAMP NOT NULL,
	executed_at TIMESTAMP,
	passed INTEGER,
	checks TEXT NOT NULL,
	triggered_rollback INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_health_checks_due ON health_checks(executed_at, scheduled_at);

CREATE TABLE IF NOT EXISTS approval_requests (
	id TEXT PRIMARY KEY,
	failure_id TEXT NOT NULL,
	repository TEXT NOT NULL,
	pr_number INTEGER NOT NULL,
	required_reviewers TEXT NOT NULL,
	environment_name TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	resolved_at TIMESTAMP,
	resolved_by TEXT
);
CREATE INDEX IF NOT EXISTS idx_approvals_pending ON approval_requests(repository, status);

CREATE TABLE IF NOT EXISTS decision_records (
	id TEXT PRIMARY KEY,
	failure_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	chosen TEXT NOT NULL,
	alternatives TEXT NOT NULL,
	context_digest TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_failure ON decision_records(failure_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	actor TEXT NOT NULL,
	action_kind TEXT NOT NULL,
	failure_id TEXT,
	repository TEXT,
	outcome TEXT NOT NULL,
	details TEXT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_repository ON audit_log(repository, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_failure ON audit_log(failure_id);
`

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(createSchemaSQL); err != nil {
		return err
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err := db.Exec(`INSERT INTO schema_meta (version) VALUES (?)`, schemaVersion)
		return err
	}
	return nil
}
