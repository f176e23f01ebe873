package handlers

import (
	"database/sql"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// Receive builds the handler that turns an inbound datagram into a
// pipeline envelope: parse transit_key_id/ciphertext from raw_data, and
// add the transit_key dependency so resolve_deps can fetch the secret
// (spec.md §6 wire protocol).
func Receive(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "01_receive",
		Filter: func(e types.Envelope) bool {
			return len(e.RawData) > 0 && e.TransitCiphertext == nil
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			keyID, ciphertext, err := parseRawDatagram(e.RawData)
			if err != nil {
				return nil, err
			}
			out := e
			out.TransitKeyID = &types.KeyRef{Kind: types.KeyRefKindKey, ID: keyID}
			out.TransitCiphertext = ciphertext
			out.RawData = nil
			// Appending a dep resets deps_included_and_valid (spec.md
			// §4.2 "Reset rule").
			out.Deps = append(append([]string(nil), out.Deps...), (types.DepRef{Kind: "transit_key", ID: keyID}).String())
			out.DepsIncludedAndValid = false
			return []types.Envelope{out}, nil
		},
	}
}
