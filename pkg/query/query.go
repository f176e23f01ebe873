// Package query implements the read-only facade spec.md §4.8 names: a
// thin wrapper over the same *sql.DB the engine writes through,
// rejecting anything but a leading SELECT/WITH/EXPLAIN so a query
// client can never mutate projected state outside the pipeline.
//
// Grounded on _examples/cuemby-warren/pkg/storage's single-writer
// convention, generalized here into an explicit read-only guard rather
// than relying on caller discipline.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/quietmesh/core/pkg/types"
)

// Facade is a read-only view over the projected-state database.
type Facade struct {
	db *sql.DB
}

// New wraps db (typically store.DB.Conn()) as a read-only Facade.
func New(db *sql.DB) *Facade {
	return &Facade{db: db}
}

// Query runs a read-only SQL statement and returns every row as a
// column-name-keyed map, preserving row order.
func (f *Facade) Query(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	if !isReadOnly(stmt) {
		return nil, fmt.Errorf("%w: query facade only accepts SELECT/WITH/EXPLAIN statements", types.ErrMalformedEnvelope)
	}
	rows, err := f.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// isReadOnly reports whether stmt's leading keyword is one of the
// statements that cannot mutate state. It deliberately does not try to
// parse SQL; it only gates the one thing that matters, the opening
// keyword, the same way a reverse proxy gates HTTP methods rather than
// parsing request bodies.
func isReadOnly(stmt string) bool {
	trimmed := strings.TrimSpace(stmt)
	trimmed = strings.TrimLeft(trimmed, "(")
	trimmed = strings.TrimSpace(trimmed)
	upper := strings.ToUpper(trimmed)
	for _, kw := range []string{"SELECT", "WITH", "EXPLAIN"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}
