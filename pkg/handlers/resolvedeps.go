package handlers

import (
	"database/sql"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// ResolveDeps builds the handler that runs resolver.Resolve over every
// envelope whose deps are not yet known-valid (spec.md §4.2). A park
// (missing deps) yields no further emission here — the envelope has
// been persisted to the blocked table and will re-enter the pipeline
// via Unblock, which Validate triggers after storing a dependency.
func ResolveDeps(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "02_resolve_deps",
		Filter: func(e types.Envelope) bool {
			return len(e.Deps) > 0 && (!e.DepsIncludedAndValid || e.Unblocked)
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			out, err := d.Resolver.Resolve(tx, e)
			if err != nil {
				return nil, err
			}
			if !out.DepsIncludedAndValid {
				// Parked; nothing to re-emit right now.
				return nil, nil
			}
			out.Unblocked = false
			return []types.Envelope{out}, nil
		},
	}
}
