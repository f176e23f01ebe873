// Package protocol is the minimal reference catalog of event types the
// core pipeline ships with: identity, peer, key, channel, message,
// user, and invite. The core itself treats every event body as an
// opaque canonical byte string (spec.md §1); this package is where a
// concrete application supplies the validators and projectors that
// give those bytes meaning, following the same registration pattern
// _examples/cuemby-warren/pkg/manager/fsm.go uses to route a raft
// command's Op to the function that applies it.
//
// Two plaintext field conventions are established here and assumed
// throughout pkg/handlers: an identity/peer event carries
// sign_public_key (ed25519, used to verify events from that peer) and
// kx_public_key (curve25519, used to seal key_ref{kind:peer} events to
// that peer).
package protocol
