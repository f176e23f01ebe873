package handlers

import (
	"database/sql"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// Sender delivers a fully-wrapped outbound datagram to the network
// simulator/transport, treated as an opaque wire per spec.md §1.
type Sender interface {
	Send(o types.OutgoingTransitEnvelope, raw []byte) error
}

// NopSender discards outbound datagrams; used by tests and by any
// deployment that only exercises the pipeline up to the wire boundary.
type NopSender struct{}

func (NopSender) Send(types.OutgoingTransitEnvelope, []byte) error { return nil }

// Send builds the final pipeline stage: project the envelope down to
// types.OutgoingTransitEnvelope — the only shape structurally capable
// of leaving the process (spec.md §4.3, §8 scenario 5) — and hand it to
// the Sender.
func Send(d *Deps, sender Sender) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "10_send",
		Filter: func(e types.Envelope) bool {
			return e.Outgoing && e.OutgoingChecked && e.TransitCiphertext != nil
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			outgoing := types.OutgoingFromEnvelope(e)
			raw := buildRawDatagram(outgoing.TransitKeyID.ID, outgoing.TransitCiphertext)
			if err := sender.Send(outgoing, raw); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}
}
