// Package crypto implements the four cryptographic layers the pipeline
// relies on:
//
//   - hashing: BLAKE2b-128 event ids (hash.go)
//   - symmetric AEAD: secretbox, used for both the transit layer and
//     group/channel event encryption (aead.go, transit.go)
//   - sealing: anonymous nacl/box KEM, used when an event's key_ref is
//     kind=peer (seal.go)
//   - signing: ed25519 (sign.go)
//
// All functions here are pure: they take keys and bytes, return bytes
// or an error, and never touch the database or the network, matching
// "crypto handlers are pure with respect to the envelope" (spec.md
// §4.3). CRYPTO_MODE=dummy routes through a deterministic, non-random
// Suite (mode.go) so tests can assert exact bytes; Mode=real is the
// config default, and cmd/quietmesh-node uses whichever mode its config
// selects.
//
// # Key reference invariant
//
// Every other package that needs to name a key does so through
// types.KeyRef{Kind, ID}, never a bare string: Kind=peer resolves
// through a signing_keys identity via SealToPeer/OpenFromPeer, Kind=key
// resolves through an event_keys or transit_keys secret via
// SealSymmetric/OpenSymmetric. This package has no opinion on how a
// KeyRef is resolved to bytes — that is pkg/resolver's and pkg/secrets'
// job — it only consumes the resolved key material.
package crypto
