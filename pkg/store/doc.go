// Package store is quietmesh's single-writer relational backing store:
// the event table (events), the blocked-envelope park table and its
// dependency index (blocked_events, blocked_event_deps), and job
// bookkeeping (job_states, job_runs). Every write goes through a method
// here so that the "one transaction per envelope-handler invocation"
// rule (spec.md §5) and the idempotent-put / retain-on-purge invariants
// (spec.md §4.5) have exactly one implementation.
//
// Projected tables — the per-event-type state a projector declares —
// are not defined here; pkg/protocol's EnsureSchema creates them and
// pkg/projector's delta applier writes them against the same *sql.DB
// returned by DB.Conn.
package store
