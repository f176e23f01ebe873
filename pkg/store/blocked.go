package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PutBlocked inserts or replaces a parked envelope and its dependency
// index rows (spec.md §3 "Blocked record", §6 persisted schema
// blocked_events / blocked_event_deps).
func (d *DB) PutBlocked(tx *sql.Tx, eventID string, envelopeJSON []byte, missingDeps []string, retryCount int, createdAt int64) error {
	_, err := exec(d.conn, tx, `
		INSERT INTO blocked_events (event_id, envelope_json, created_at, missing_deps, retry_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			envelope_json = excluded.envelope_json,
			missing_deps  = excluded.missing_deps,
			retry_count   = excluded.retry_count`,
		eventID, envelopeJSON, createdAt, strings.Join(missingDeps, ","), retryCount)
	if err != nil {
		return fmt.Errorf("put blocked record: %w", err)
	}
	for _, dep := range missingDeps {
		if _, err := exec(d.conn, tx, `
			INSERT INTO blocked_event_deps (dep_id, event_id) VALUES (?, ?)
			ON CONFLICT(dep_id, event_id) DO NOTHING`, dep, eventID); err != nil {
			return fmt.Errorf("put blocked dep index: %w", err)
		}
	}
	return nil
}

// BlockedByDep returns, in insertion order, every blocked envelope
// waiting on depID (spec.md §8 "Unblock processes parked envelopes in
// insertion order").
func (d *DB) BlockedByDep(tx *sql.Tx, depID string) ([]BlockedRow, error) {
	rows, err := query(d.conn, tx, `
		SELECT be.event_id, be.envelope_json, be.created_at, be.missing_deps, be.retry_count
		FROM blocked_events be
		JOIN blocked_event_deps bd ON bd.event_id = be.event_id
		WHERE bd.dep_id = ?
		ORDER BY be.created_at ASC, be.rowid ASC`, depID)
	if err != nil {
		return nil, fmt.Errorf("query blocked by dep: %w", err)
	}
	defer rows.Close()

	var out []BlockedRow
	for rows.Next() {
		var r BlockedRow
		var missing string
		if err := rows.Scan(&r.EventID, &r.EnvelopeJSON, &r.CreatedAt, &missing, &r.RetryCount); err != nil {
			return nil, err
		}
		if missing != "" {
			r.MissingDeps = strings.Split(missing, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteBlocked removes a parked envelope and its dependency index rows
// on unblock or retry-cap drop.
func (d *DB) DeleteBlocked(tx *sql.Tx, eventID string) error {
	if _, err := exec(d.conn, tx, `DELETE FROM blocked_event_deps WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("delete blocked dep index: %w", err)
	}
	if _, err := exec(d.conn, tx, `DELETE FROM blocked_events WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("delete blocked record: %w", err)
	}
	return nil
}

// BlockedRow is the raw persisted shape of a parked envelope.
type BlockedRow struct {
	EventID      string
	EnvelopeJSON []byte
	CreatedAt    int64
	MissingDeps  []string
	RetryCount   int
}

// DecodeEnvelope is a convenience for callers that stored arbitrary JSON
// payloads via PutBlocked.
func (r BlockedRow) DecodeEnvelope(v any) error {
	return json.Unmarshal(r.EnvelopeJSON, v)
}
