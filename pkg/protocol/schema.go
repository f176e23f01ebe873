package protocol

import "database/sql"

// projectedSchema creates the queryable tables the reference
// projectors write into. It is separate from pkg/store's schema (the
// core engine's own envelope/blocked/job tables, spec.md §6) because
// these tables are entirely a function of which protocol a deployment
// chooses to run.
const projectedSchema = `
CREATE TABLE IF NOT EXISTS peers (
	peer_id         TEXT PRIMARY KEY,
	sign_public_key TEXT NOT NULL,
	kx_public_key   TEXT NOT NULL,
	display_name    TEXT,
	event_id        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	channel_id TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	event_id   TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	author_id  TEXT NOT NULL,
	content    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id);

CREATE TABLE IF NOT EXISTS users (
	user_id  TEXT PRIMARY KEY,
	peer_id  TEXT NOT NULL,
	event_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS invites (
	event_id    TEXT PRIMARY KEY,
	channel_id  TEXT NOT NULL,
	invitee_id  TEXT NOT NULL
);
`

// EnsureSchema creates the reference catalog's projected tables if they
// do not already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(projectedSchema)
	return err
}
