package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/quietmesh/core/pkg/types"
)

// transitKeyIDLen is the fixed prefix length the wire format reserves
// for a transit_key_id (spec.md §6: "first 32 bytes = transit_key_id,
// remainder = ciphertext").
const transitKeyIDLen = 32

// eventLayerPayload is what rides inside a transit-wrapped ciphertext:
// the event-layer header (key_ref, event_id, network_id) plus the
// event-layer ciphertext itself. The transit crypto handler encodes
// this at encrypt time and decodes it at decrypt time so that "transit
// crypto... replaces the transit fields with event-layer fields"
// (spec.md §4.3) has a concrete wire shape.
type eventLayerPayload struct {
	KeyRef          types.KeyRef `json:"key_ref"`
	EventCiphertext []byte       `json:"event_ciphertext"`
	EventID         string       `json:"event_id"`
	NetworkID       string       `json:"network_id"`
}

func encodeEventLayer(p eventLayerPayload) ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode event layer: %w", err)
	}
	return b, nil
}

func decodeEventLayer(b []byte) (eventLayerPayload, error) {
	var p eventLayerPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return eventLayerPayload{}, fmt.Errorf("%w: decode event layer: %v", types.ErrMalformedEnvelope, err)
	}
	return p, nil
}

// parseRawDatagram splits an inbound datagram per spec.md §6's wire
// format into its transit key id and ciphertext.
func parseRawDatagram(raw []byte) (keyID string, ciphertext []byte, err error) {
	if len(raw) < transitKeyIDLen {
		return "", nil, fmt.Errorf("%w: datagram shorter than transit key id", types.ErrMalformedEnvelope)
	}
	return string(raw[:transitKeyIDLen]), raw[transitKeyIDLen:], nil
}

// buildRawDatagram is the send handler's inverse of parseRawDatagram.
func buildRawDatagram(keyID string, ciphertext []byte) []byte {
	idBytes := make([]byte, transitKeyIDLen)
	copy(idBytes, keyID)
	return append(idBytes, ciphertext...)
}
