package handlers

import (
	"database/sql"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/projector"
	"github.com/quietmesh/core/pkg/types"
)

// Project builds the handler that routes a validated+stored envelope to
// its projector function and applies the resulting deltas (spec.md
// §4.4 "Projector", "Ordering: projection strictly after store"). It
// marks local_only events projected without applying any deltas they
// might declare for dependency-reference purposes, since local-only
// events never populate queryable state (spec.md §9 "Local-only
// events").
func Project(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "08_project",
		Filter: func(e types.Envelope) bool {
			return e.Validated && e.Stored && !e.Projected && e.EventID != ""
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			out := e

			if !out.LocalOnly {
				deltas, err := d.Projectors.Project(out)
				if err != nil {
					return nil, err
				}
				if err := projector.Apply(tx, deltas); err != nil {
					return nil, err
				}
			}
			out.Projected = true
			if out.SelfCreated && !out.LocalOnly {
				out.Outgoing = true
			}
			return []types.Envelope{out}, nil
		},
	}
}
