// Package flow implements composite, multi-event operations as
// sequential emit() calls (spec.md §4.5 "Flow orchestrator"): a flow is
// a plain Go function that calls Emit one or more times and collects
// the resulting event IDs, with no transaction spanning the whole
// sequence — each emitted event goes through the full envelope
// pipeline (and its own transactions) independently, exactly as if an
// external caller had submitted it.
//
// Grounded on spec.md §4.5 directly; the synchronous call/response
// shape mirrors _examples/cuemby-warren/pkg/manager's pattern of a
// manager method performing one cluster operation as a short sequence
// of raft proposals, reading results back out in between.
package flow

import (
	"fmt"

	"github.com/quietmesh/core/pkg/crypto"
	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/secrets"
	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

// Orchestrator runs emit() sequences against a live pipeline.
type Orchestrator struct {
	dispatcher *dispatcher.Dispatcher
	crypto     crypto.Suite
	store      *store.DB
	secrets    *secrets.Store
	peerID     string
	networkID  string
}

// New builds an Orchestrator. peerID/networkID are the local node's
// default identity and network, used for every self-created envelope
// unless EmitOptions overrides them. secretStore lets multi-event flows
// (e.g. JoinAsUser) look up this node's own published key material
// instead of requiring every caller to pass it in by hand.
func New(d *dispatcher.Dispatcher, suite crypto.Suite, db *store.DB, secretStore *secrets.Store, peerID, networkID string) *Orchestrator {
	return &Orchestrator{dispatcher: d, crypto: suite, store: db, secrets: secretStore, peerID: peerID, networkID: networkID}
}

// EmitOptions customizes a single Emit call beyond the defaults.
type EmitOptions struct {
	Deps      []string
	KeyRef    *types.KeyRef
	LocalOnly bool
	PeerID    string
	NetworkID string

	// TransitKeyID selects the hop-by-hop transit secret an outgoing
	// self-created event will be wrapped under. A self-created envelope
	// otherwise never reaches "transit_encrypt" (pkg/handlers/transitcrypto.go)
	// because that stage's filter requires TransitKeyID already set —
	// the same way an inbound datagram arrives with it already
	// populated by Receive. Setting it here also adds the matching
	// "transit_key:<id>" dependency so ResolveDeps resolves the secret
	// before transit-encrypt runs.
	TransitKeyID *types.KeyRef
}

// Emit constructs a self-created envelope for eventType/plaintext, runs
// it through the full pipeline synchronously, and returns the event_id
// the pipeline will assign it. The id is computed locally from the same
// canonical encoding the Signature/EventCrypto stages use, so it is
// known before the pipeline finishes — the defining shape of
// "emit(type, plaintext, deps) → event_id" (spec.md §4.5).
func (o *Orchestrator) Emit(eventType string, plaintext map[string]any, opts EmitOptions) (string, error) {
	canon, err := types.CanonicalPlaintext(plaintext)
	if err != nil {
		return "", fmt.Errorf("flow: canonicalize %s: %w", eventType, err)
	}
	eventID, err := o.crypto.EventID(canon)
	if err != nil {
		return "", fmt.Errorf("flow: compute event id for %s: %w", eventType, err)
	}

	peerID := opts.PeerID
	if peerID == "" {
		peerID = o.peerID
	}
	networkID := opts.NetworkID
	if networkID == "" {
		networkID = o.networkID
	}

	deps := opts.Deps
	if opts.TransitKeyID != nil {
		deps = append(append([]string{}, deps...), "transit_key:"+opts.TransitKeyID.ID)
	}

	env := types.Envelope{
		EventType:      eventType,
		EventPlaintext: plaintext,
		PeerID:         peerID,
		NetworkID:      networkID,
		Deps:           deps,
		KeyRef:         opts.KeyRef,
		TransitKeyID:   opts.TransitKeyID,
		SelfCreated:    true,
		LocalOnly:      opts.LocalOnly,
	}

	dropped := o.dispatcher.Run([]types.Envelope{env})
	for _, dr := range dropped {
		if dr.Envelope.EventType == eventType && sameBody(dr.Envelope.EventPlaintext, plaintext) {
			return "", fmt.Errorf("flow: emit %s dropped: %w", eventType, dr.Reason)
		}
	}
	return eventID, nil
}

// Result is the {ids, data} shape every exported flow returns (spec.md
// §4.6's response convention): ids names every event type a flow
// emitted exactly once, keyed by event_type; data carries whatever
// scalar/derived fields the flow wants to hand back to its caller (e.g.
// a generated channel name, a computed default).
type Result struct {
	IDs  map[string]string `json:"ids"`
	Data map[string]any    `json:"data"`
}

// Run accumulates event ids by event type over the course of one flow
// invocation, so a multi-event flow can build the {ids, data} response
// spec.md §4.6 describes ("collects event ids by type ... only event
// types created exactly once in the flow appear in ids") without
// hand-building the map itself.
type Run struct {
	o      *Orchestrator
	counts map[string]int
	ids    map[string]string
}

// Begin starts a new flow run against this orchestrator.
func (o *Orchestrator) Begin() *Run {
	return &Run{o: o, counts: make(map[string]int), ids: make(map[string]string)}
}

// Emit runs eventType/plaintext through the pipeline exactly like
// Orchestrator.Emit, and records the resulting id under eventType for
// Result's exactly-once filtering.
func (r *Run) Emit(eventType string, plaintext map[string]any, opts EmitOptions) (string, error) {
	id, err := r.o.Emit(eventType, plaintext, opts)
	if err != nil {
		return "", err
	}
	r.counts[eventType]++
	r.ids[eventType] = id
	return id, nil
}

// Result builds the {ids, data} response: an event type appears in ids
// only if exactly one event of that type was emitted on this run
// (spec.md §4.6).
func (r *Run) Result(data map[string]any) Result {
	ids := make(map[string]string, len(r.counts))
	for t, c := range r.counts {
		if c == 1 {
			ids[t] = r.ids[t]
		}
	}
	return Result{IDs: ids, Data: data}
}

func sameBody(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if fmt.Sprint(b[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}
