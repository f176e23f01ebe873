package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// EventIDSize is the length in bytes of a BLAKE2b-128 event id
// (spec.md §3: "event_id = BLAKE2b-128 of canonical signed plaintext").
const EventIDSize = 16

// EventID hashes canonical signed plaintext into a BLAKE2b-128 digest,
// hex-encoded. It is the sole place event ids are computed so that every
// caller (signer, event store, tests) agrees on the derivation.
func EventID(canonicalSignedPlaintext []byte) (string, error) {
	h, err := blake2b.New(EventIDSize, nil)
	if err != nil {
		return "", err
	}
	h.Write(canonicalSignedPlaintext)
	return hex.EncodeToString(h.Sum(nil)), nil
}
