// Package types defines the data shapes that flow through the envelope
// pipeline: the Envelope itself, events, resolved dependencies, blocked
// records, and projection deltas.
package types

import "fmt"

// KeyRefKind discriminates the two ways a cryptographic key can be
// referenced from an envelope: by peer identity (KEM) or by a shared
// group/transit secret (AEAD).
type KeyRefKind string

const (
	KeyRefKindPeer KeyRefKind = "peer"
	KeyRefKindKey  KeyRefKind = "key"
)

// KeyRef is the invariant tagged-union representation used everywhere a
// transit or event key needs naming, resolving the source's ambiguity
// between "key_id" and "transit_key_id as an identity_id" (see
// SPEC_FULL.md §11).
type KeyRef struct {
	Kind KeyRefKind
	ID   string
}

func (k KeyRef) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}

// DepRef is a parsed dependency reference of the form "<kind>:<id>".
type DepRef struct {
	Kind string
	ID   string
}

func (d DepRef) String() string {
	return fmt.Sprintf("%s:%s", d.Kind, d.ID)
}

// ParseDepRef splits a "<kind>:<id>" string. A ref with no colon is
// malformed and returns an error (spec.md §4.2 failure modes).
func ParseDepRef(s string) (DepRef, error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			if i == 0 || i == len(s)-1 {
				break
			}
			return DepRef{Kind: s[:i], ID: s[i+1:]}, nil
		}
	}
	return DepRef{}, fmt.Errorf("%w: %q", ErrMalformedEnvelope, s)
}

// ResolvedDepKind discriminates the tagged-union variants a resolved
// dependency can take, per spec.md §3.
type ResolvedDepKind string

const (
	ResolvedKindValidatedEvent ResolvedDepKind = "validated_event"
	ResolvedKindIdentity       ResolvedDepKind = "identity"
	ResolvedKindTransitKey     ResolvedDepKind = "transit_key"
	ResolvedKindAddress        ResolvedDepKind = "address"
)

// ResolvedDep is the payload attached to Envelope.ResolvedDeps for one
// dependency reference, once resolved.
type ResolvedDep struct {
	Kind ResolvedDepKind

	// ValidatedEvent / Identity
	Plaintext map[string]any
	EventType string
	EventID   string

	// Identity only: present solely on the self-created path, never
	// transmitted (spec.md invariant 3).
	PrivateKey []byte

	// TransitKey
	Secret    []byte
	NetworkID string

	// Address
	IP   string
	Port int
}

// LocalMetadata carries local-only, never-transmitted data attached to
// an envelope (e.g. a freshly generated private key for a self-created
// identity event).
type LocalMetadata struct {
	PrivateKey []byte
}

// Envelope is the value-typed container an event rides through the
// pipeline in. Every field is optional; its zero value means "this
// pipeline stage has not happened yet". Handlers read presence to decide
// whether they match (see pkg/dispatcher); some also test EventType,
// e.g. to route "key" events.
type Envelope struct {
	EventPlaintext map[string]any
	EventCiphertext []byte
	EventType       string
	EventID         string

	PeerID    string
	NetworkID string

	Deps         []string
	ResolvedDeps map[string]ResolvedDep
	LocalMetadata *LocalMetadata

	DepsIncludedAndValid bool
	Unblocked            bool

	SelfCreated   bool
	SigChecked    bool
	IsGroupMember bool
	Validated     bool
	Stored        bool
	Projected     bool

	MissingDeps     bool
	MissingDepList  []string

	TransitKeyID      *KeyRef
	TransitCiphertext []byte
	KeyRef            *KeyRef

	Outgoing        bool
	OutgoingChecked bool
	DestIP          string
	DestPort        int
	DueMs           int64

	// Inbound wire metadata, set by the receive handler.
	OriginIP   string
	OriginPort int
	ReceivedAt int64
	RawData    []byte

	RequestID  string
	RetryCount int

	// Signature set by the signing handler prior to event_id assignment.
	Signature []byte

	// LocalOnly marks identity-like events that must never reach the
	// send pipeline (spec.md §9, "Local-only events").
	LocalOnly bool
}

// Clone returns a shallow value copy suitable for re-emission; slices and
// maps are not deep-copied, matching the "handlers consume one, return
// zero or more" value semantics — handlers that mutate nested structures
// must replace them, not edit in place.
func (e Envelope) Clone() Envelope {
	return e
}

// OutgoingTransitEnvelope is the only shape permitted to leave the
// process outbound. Its field set structurally forbids leaking
// plaintext, resolved deps, or local metadata (spec.md §4.3, §8
// scenario 5).
type OutgoingTransitEnvelope struct {
	TransitCiphertext []byte
	TransitKeyID      KeyRef
	DestIP            string
	DestPort          int
	DueMs             int64
}

// OutgoingFromEnvelope projects the fields of e that are safe to send. Callers
// must construct the outbound envelope only through this function so
// that adding a field to Envelope can never silently leak it.
func OutgoingFromEnvelope(e Envelope) OutgoingTransitEnvelope {
	o := OutgoingTransitEnvelope{
		TransitCiphertext: e.TransitCiphertext,
		DestIP:            e.DestIP,
		DestPort:          e.DestPort,
		DueMs:             e.DueMs,
	}
	if e.TransitKeyID != nil {
		o.TransitKeyID = *e.TransitKeyID
	}
	return o
}

// StoredEvent is the persisted row shape of the event store (spec.md
// §4.5).
type StoredEvent struct {
	EventID         string
	EventType       string
	EventCiphertext []byte
	EventPlaintext  []byte
	KeyID           string
	ReceivedAt      int64
	OriginIP        string
	OriginPort      int
	StoredAt        int64
	Purged          bool
	PurgedAt        int64
	TTLExpireAt     int64
}

// BlockedRecord is a parked envelope awaiting dependency resolution
// (spec.md §3, §4.2).
type BlockedRecord struct {
	EventID        string
	EnvelopeJSON    []byte
	MissingDeps     []string
	RetryCount      int
	BlockedAt       int64
}

// DeltaOp enumerates the kinds of mutation a projector can declare.
type DeltaOp string

const (
	DeltaInsert DeltaOp = "insert"
	DeltaUpdate DeltaOp = "update"
	DeltaDelete DeltaOp = "delete"
)

// Delta is a declarative state mutation emitted by a projector
// (spec.md §3, §4.4, §9). WHERE clauses are equality-only: Where maps
// column names to required values.
type Delta struct {
	Op        DeltaOp
	Table     string
	Data      map[string]any
	Where     map[string]any
	OnConflict string // e.g. "event_id" — column(s) for ON CONFLICT DO UPDATE
}
