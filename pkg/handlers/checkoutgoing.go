package handlers

import (
	"database/sql"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// CheckOutgoing builds the handler that gates an envelope marked
// outgoing for the send path. It exists as its own stage — distinct
// from send — so that "outgoing_checked" is a separate, observable
// pipeline flag a test can assert on before the leakage-sensitive
// transit-encrypt stage runs (spec.md §8 scenario 5).
//
// Local-only events (spec.md §9) never reach outgoing_checked=true:
// they are dropped here rather than silently forwarded to transit
// crypto.
func CheckOutgoing(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "09_check_outgoing",
		Filter: func(e types.Envelope) bool {
			return e.Outgoing && !e.OutgoingChecked
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			if e.LocalOnly {
				return nil, nil
			}
			out := e
			out.OutgoingChecked = true
			return []types.Envelope{out}, nil
		},
	}
}
