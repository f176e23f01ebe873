package store

// schema is applied once at Open via CREATE TABLE IF NOT EXISTS, mirroring
// warren's boltdb CreateBucketIfNotExists-on-open idiom but for SQLite
// tables. Projected tables are NOT declared here: the reference
// protocol declares them in pkg/protocol, and its EnsureSchema creates
// them once, before any event is projected.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	event_id         TEXT PRIMARY KEY,
	event_type       TEXT NOT NULL,
	event_ciphertext BLOB,
	event_plaintext  BLOB,
	key_id           TEXT,
	received_at      INTEGER,
	origin_ip        TEXT,
	origin_port      INTEGER,
	stored_at        INTEGER,
	purged           INTEGER NOT NULL DEFAULT 0,
	purged_at        INTEGER,
	ttl_expire_at    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);

CREATE TABLE IF NOT EXISTS blocked_events (
	event_id      TEXT PRIMARY KEY,
	envelope_json BLOB NOT NULL,
	created_at    INTEGER NOT NULL,
	missing_deps  TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS blocked_event_deps (
	dep_id   TEXT NOT NULL,
	event_id TEXT NOT NULL,
	PRIMARY KEY (dep_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_blocked_event_deps_dep ON blocked_event_deps(dep_id);

CREATE TABLE IF NOT EXISTS job_states (
	job_name   TEXT PRIMARY KEY,
	state_json BLOB,
	updated_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS job_runs (
	job_name      TEXT PRIMARY KEY,
	run_count     INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	last_run_ms   INTEGER NOT NULL DEFAULT 0
);
`
