// Package store implements the relational event store and projected
// state database over SQLite (spec.md §4.5). The delta applier that
// mutates projected tables on behalf of the projector framework is
// projector.Apply (pkg/projector), which writes inside a transaction
// begun here.
//
// The sqlite driver itself
// (github.com/mattn/go-sqlite3) is carried over from
// _examples/Ap3pp3rs94-Chartly2.0, which needs the same relational
// WHERE/upsert semantics bbolt cannot express.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quietmesh/core/pkg/types"
)

// DB wraps the SQLite connection backing the event store and projected
// tables. Writes to the event, blocked and job tables go through its
// methods; projected tables are written by projector.Apply inside a
// transaction from BeginTx.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the base schema. path may be ":memory:" for tests.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	// SQLite serializes writers regardless; a single open connection
	// keeps "one transaction per envelope-handler invocation" (spec.md
	// §5) from racing against itself across goroutines.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the raw *sql.DB for packages that need to begin their
// own transactions (pkg/dispatcher, per spec.md §5 "one transaction per
// envelope-handler invocation").
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Exists reports whether event_id is already present, purged or not.
// No pipeline handler calls it: an inbound event whose id is already
// stored runs through the pipeline again, and Put's ON CONFLICT DO
// NOTHING keeps its row single.
func (d *DB) Exists(tx *sql.Tx, eventID string) (bool, error) {
	row := queryRow(d.conn, tx, `SELECT 1 FROM events WHERE event_id = ?`, eventID)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check event exists: %w", err)
	}
	return true, nil
}

// Get fetches a stored event by id.
func (d *DB) Get(tx *sql.Tx, eventID string) (types.StoredEvent, bool, error) {
	row := queryRow(d.conn, tx, `
		SELECT event_id, event_type, event_ciphertext, event_plaintext, key_id,
		       received_at, origin_ip, origin_port, stored_at, purged, purged_at, ttl_expire_at
		FROM events WHERE event_id = ?`, eventID)

	var e types.StoredEvent
	var purged int
	var ciphertext, plaintext sql.NullString
	var keyID, originIP sql.NullString
	var originPort, purgedAt, ttlExpireAt sql.NullInt64

	err := row.Scan(&e.EventID, &e.EventType, &ciphertext, &plaintext, &keyID,
		&e.ReceivedAt, &originIP, &originPort, &e.StoredAt, &purged, &purgedAt, &ttlExpireAt)
	if err == sql.ErrNoRows {
		return types.StoredEvent{}, false, nil
	}
	if err != nil {
		return types.StoredEvent{}, false, fmt.Errorf("get event: %w", err)
	}
	e.EventCiphertext = []byte(ciphertext.String)
	e.EventPlaintext = []byte(plaintext.String)
	e.KeyID = keyID.String
	e.OriginIP = originIP.String
	e.OriginPort = int(originPort.Int64)
	e.Purged = purged != 0
	e.PurgedAt = purgedAt.Int64
	e.TTLExpireAt = ttlExpireAt.Int64
	return e, true, nil
}

// Put idempotently inserts an event. A pre-existing event_id is a no-op
// (spec.md §4.5 "put is idempotent on event_id; re-stores are no-ops").
func (d *DB) Put(tx *sql.Tx, e types.StoredEvent) error {
	_, err := exec(d.conn, tx, `
		INSERT INTO events (event_id, event_type, event_ciphertext, event_plaintext,
		                     key_id, received_at, origin_ip, origin_port, stored_at,
		                     purged, purged_at, ttl_expire_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.EventType, e.EventCiphertext, e.EventPlaintext,
		e.KeyID, e.ReceivedAt, e.OriginIP, e.OriginPort, e.StoredAt, e.TTLExpireAt)
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// Purge marks an event purged: its body is cleared but the row (and its
// event_id) is retained forever for duplicate rejection (spec.md §4.5,
// §9 authoritative resolution of the purge-vs-retain open question).
// If the event_id has never been stored, Purge inserts a tombstone row
// so a later validator-rejected re-delivery is still deduped.
func (d *DB) Purge(tx *sql.Tx, eventID, eventType string, purgedAt int64) error {
	res, err := exec(d.conn, tx, `
		UPDATE events SET purged = 1, purged_at = ?, event_ciphertext = NULL, event_plaintext = NULL
		WHERE event_id = ?`, purgedAt, eventID)
	if err != nil {
		return fmt.Errorf("purge event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("purge event: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = exec(d.conn, tx, `
		INSERT INTO events (event_id, event_type, stored_at, purged, purged_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(event_id) DO NOTHING`, eventID, eventType, purgedAt, purgedAt)
	if err != nil {
		return fmt.Errorf("insert purge tombstone: %w", err)
	}
	return nil
}

// Tombstones returns every purged event_id. No job in this module
// calls it.
func (d *DB) Tombstones(tx *sql.Tx) ([]string, error) {
	rows, err := query(d.conn, tx, `SELECT event_id FROM events WHERE purged = 1`)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BeginTx starts the one-transaction-per-envelope-handler-invocation
// transaction the dispatcher owns (spec.md §5).
func (d *DB) BeginTx() (*sql.Tx, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// queryRow/exec/query accept an optional *sql.Tx so callers inside a
// handler's transaction compose with callers (tests, jobs) operating
// directly against the connection.

func queryRow(conn *sql.DB, tx *sql.Tx, query string, args ...any) *sql.Row {
	if tx != nil {
		return tx.QueryRow(query, args...)
	}
	return conn.QueryRow(query, args...)
}

func query(conn *sql.DB, tx *sql.Tx, q string, args ...any) (*sql.Rows, error) {
	if tx != nil {
		return tx.Query(q, args...)
	}
	return conn.Query(q, args...)
}

func exec(conn *sql.DB, tx *sql.Tx, q string, args ...any) (sql.Result, error) {
	if tx != nil {
		return tx.Exec(q, args...)
	}
	return conn.Exec(q, args...)
}
