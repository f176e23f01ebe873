// Package projector routes validated events to per-type pure projector
// functions and applies the declarative types.Delta values they return
// against the projected-state SQLite tables (spec.md §4.4, §9
// "Projector deltas... preserve purity").
//
// The applier's switch-on-Delta.Op shape is grounded on
// _examples/cuemby-warren/pkg/manager/fsm.go's Apply(log *raft.Log)
// switch-by-cmd.Op dispatch: here a projector-emitted Delta plays the
// role fsm.Command played there, and the mutation target is a SQLite
// table instead of warren's BoltDB-backed storage.Store.
package projector

import (
	"database/sql"
	"fmt"

	"github.com/quietmesh/core/pkg/types"
)

// Func is a per-event-type projector: a pure function from a validated
// envelope to the deltas that realize it in projected state. It must
// never touch the database (spec.md §4.4, §9 "decorators enforcing no
// DB access" — enforced here simply by the function signature taking
// no transactional handle).
type Func func(e types.Envelope) ([]types.Delta, error)

// Registry maps event_type to its projector function.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a projector for eventType. Registering the same type
// twice is a programming error and panics at startup.
func (r *Registry) Register(eventType string, fn Func) {
	if _, exists := r.funcs[eventType]; exists {
		panic(fmt.Sprintf("projector: duplicate registration for event type %q", eventType))
	}
	r.funcs[eventType] = fn
}

// Project looks up the projector for e.EventType and runs it. A type
// with no registered projector yields no deltas — not every event type
// needs projected state (e.g. purely local identity events).
func (r *Registry) Project(e types.Envelope) ([]types.Delta, error) {
	fn, ok := r.funcs[e.EventType]
	if !ok {
		return nil, nil
	}
	deltas, err := fn(e)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", e.EventType, err)
	}
	return deltas, nil
}

// Apply executes deltas in order against tx, inside the caller's
// transaction (one transaction per envelope, spec.md §5). Table and
// column names come from trusted projector code, not external input, so
// they are interpolated directly; values are always bound as
// parameters.
func Apply(tx *sql.Tx, deltas []types.Delta) error {
	for i, d := range deltas {
		if err := applyOne(tx, d); err != nil {
			return fmt.Errorf("apply delta %d (%s %s): %w", i, d.Op, d.Table, err)
		}
	}
	return nil
}

func applyOne(tx *sql.Tx, d types.Delta) error {
	switch d.Op {
	case types.DeltaInsert:
		return applyInsert(tx, d)
	case types.DeltaUpdate:
		return applyUpdate(tx, d)
	case types.DeltaDelete:
		return applyDelete(tx, d)
	default:
		return fmt.Errorf("unknown delta op %q", d.Op)
	}
}

func applyInsert(tx *sql.Tx, d types.Delta) error {
	cols, args := orderedPairs(d.Data)
	placeholders := placeholderList(len(cols))

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, d.Table, joinCols(cols), placeholders)
	if d.OnConflict != "" {
		setClause := make([]string, 0, len(cols))
		for _, c := range cols {
			setClause = append(setClause, fmt.Sprintf("%s = excluded.%s", c, c))
		}
		q += fmt.Sprintf(` ON CONFLICT(%s) DO UPDATE SET %s`, d.OnConflict, joinCols(setClause))
	}
	_, err := tx.Exec(q, args...)
	return err
}

func applyUpdate(tx *sql.Tx, d types.Delta) error {
	cols, args := orderedPairs(d.Data)
	setClause := make([]string, len(cols))
	for i, c := range cols {
		setClause[i] = fmt.Sprintf("%s = ?", c)
	}
	q := fmt.Sprintf(`UPDATE %s SET %s`, d.Table, joinCols(setClause))

	whereCols, whereArgs := orderedPairs(d.Where)
	if len(whereCols) > 0 {
		whereClause := make([]string, len(whereCols))
		for i, c := range whereCols {
			whereClause[i] = fmt.Sprintf("%s = ?", c)
		}
		q += ` WHERE ` + joinCols(whereClause)
		args = append(args, whereArgs...)
	}
	_, err := tx.Exec(q, args...)
	return err
}

func applyDelete(tx *sql.Tx, d types.Delta) error {
	q := fmt.Sprintf(`DELETE FROM %s`, d.Table)
	whereCols, whereArgs := orderedPairs(d.Where)
	if len(whereCols) > 0 {
		whereClause := make([]string, len(whereCols))
		for i, c := range whereCols {
			whereClause[i] = fmt.Sprintf("%s = ?", c)
		}
		q += ` WHERE ` + joinCols(whereClause)
	}
	_, err := tx.Exec(q, whereArgs...)
	return err
}
