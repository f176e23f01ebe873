package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CanonicalPlaintext produces a deterministic byte encoding of an
// event's plaintext body: keys sorted, flattened to an alternating
// [k1, v1, k2, v2, ...] array and JSON-encoded. It is the one encoding
// signing, verification, and event_id derivation all agree on (spec.md
// §3 "event_id = BLAKE2b-128 of canonical signed plaintext").
func CanonicalPlaintext(body map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, body[k])
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return nil, fmt.Errorf("canonicalize plaintext: %w", err)
	}
	return b, nil
}
