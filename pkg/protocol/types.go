package protocol

// Event type names for the reference catalog. A concrete deployment is
// free to register additional types against the same
// handlers.ValidatorRegistry / projector.Registry; these seven are
// what ships by default.
const (
	EventIdentity = "identity" // local-only: records this node's own key material
	EventPeer     = "peer"     // published: announces a peer's public key material
	EventKey      = "key"      // sealed group/channel secret distribution
	EventChannel  = "channel"  // creates a channel
	EventMessage  = "message"  // a channel message
	EventUser     = "user"     // a user profile bound to one or more peers
	EventInvite   = "invite"   // an invitation to join a channel
)

// Plaintext field names shared across event types. sign_public_key and
// kx_public_key are the two conventions pkg/handlers assumes: the
// former verifies a peer's signatures, the latter seals key_ref{kind:
// peer} events to that peer.
const (
	FieldPeerID        = "peer_id"
	FieldSignPublicKey = "sign_public_key"
	FieldKXPublicKey   = "kx_public_key"
	FieldDisplayName   = "display_name"
	FieldChannelID     = "channel_id"
	FieldKeyID         = "key_id"
	FieldSecret        = "secret"
	FieldContent       = "content"
	FieldAuthorID      = "author_id"
	FieldUserID        = "user_id"
	FieldInviteeID     = "invitee_id"
	FieldCreatedAtMs   = "created_at_ms"
)
