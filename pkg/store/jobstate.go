package store

import (
	"database/sql"
	"fmt"
)

// GetJobState fetches a job's persisted state blob (spec.md §6
// job_states(job_name PK, state_json, updated_ms); §4.7 "State is
// persisted per job-name and is restored on next invocation").
func (d *DB) GetJobState(tx *sql.Tx, jobName string) (stateJSON []byte, updatedMs int64, found bool, err error) {
	row := queryRow(d.conn, tx, `SELECT state_json, updated_ms FROM job_states WHERE job_name = ?`, jobName)
	var js sql.NullString
	err = row.Scan(&js, &updatedMs)
	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("get job state: %w", err)
	}
	return []byte(js.String), updatedMs, true, nil
}

// PutJobState upserts a job's state. Called only when a job returns
// ok=true (spec.md §4.7 "On ok=false, state is not updated").
func (d *DB) PutJobState(tx *sql.Tx, jobName string, stateJSON []byte, updatedMs int64) error {
	_, err := exec(d.conn, tx, `
		INSERT INTO job_states (job_name, state_json, updated_ms) VALUES (?, ?, ?)
		ON CONFLICT(job_name) DO UPDATE SET state_json = excluded.state_json, updated_ms = excluded.updated_ms`,
		jobName, stateJSON, updatedMs)
	if err != nil {
		return fmt.Errorf("put job state: %w", err)
	}
	return nil
}

// RecordJobRun increments job_runs counters: run_count always, and
// failure_count when ok=false.
func (d *DB) RecordJobRun(tx *sql.Tx, jobName string, ok bool, nowMs int64) error {
	failureIncrement := 0
	if !ok {
		failureIncrement = 1
	}
	_, err := exec(d.conn, tx, `
		INSERT INTO job_runs (job_name, run_count, failure_count, last_run_ms)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(job_name) DO UPDATE SET
			run_count     = run_count + 1,
			failure_count = failure_count + ?,
			last_run_ms   = ?`,
		jobName, failureIncrement, nowMs, failureIncrement, nowMs)
	if err != nil {
		return fmt.Errorf("record job run: %w", err)
	}
	return nil
}
