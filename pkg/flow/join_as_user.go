package flow

import (
	"fmt"

	"github.com/quietmesh/core/pkg/protocol"
)

// JoinAsUser implements the multi-event "join as a user" composite
// operation exactly as spec.md §8 scenario 6 describes it: emit this
// node's identity (local-only), then a peer advert depending on that
// identity, then a user profile depending on the peer advert and the
// invite that brought it in — three sequential emits, each depending on
// the previous event's id so the pipeline enforces ordering even though
// nothing here forces them into one transaction. The response's ids map
// contains identity/peer/user, since each is emitted exactly once.
func (o *Orchestrator) JoinAsUser(displayName, userID, channelID, inviteEventID string) (Result, error) {
	key, ok, err := o.secrets.GetSigningKey(o.peerID)
	if err != nil {
		return Result{}, fmt.Errorf("join_as_user: load signing key: %w", err)
	}
	if !ok {
		return Result{}, fmt.Errorf("join_as_user: no signing key for peer %s", o.peerID)
	}

	run := o.Begin()

	identityEventID, err := run.Emit(protocol.EventIdentity, map[string]any{
		protocol.FieldPeerID:        o.peerID,
		protocol.FieldSignPublicKey: string(key.PublicKey),
		protocol.FieldKXPublicKey:   string(key.KXPublicKey),
	}, EmitOptions{LocalOnly: true})
	if err != nil {
		return Result{}, fmt.Errorf("join_as_user: emit identity: %w", err)
	}

	peerEventID, err := run.Emit(protocol.EventPeer, map[string]any{
		protocol.FieldPeerID:        o.peerID,
		protocol.FieldSignPublicKey: string(key.PublicKey),
		protocol.FieldKXPublicKey:   string(key.KXPublicKey),
		protocol.FieldDisplayName:   displayName,
	}, EmitOptions{Deps: []string{depRef("identity", identityEventID)}})
	if err != nil {
		return Result{}, fmt.Errorf("join_as_user: emit peer: %w", err)
	}

	deps := []string{depRef("peer", peerEventID)}
	if inviteEventID != "" {
		deps = append(deps, depRef("invite", inviteEventID))
	}
	if _, err := run.Emit(protocol.EventUser, map[string]any{
		protocol.FieldUserID: userID,
		protocol.FieldPeerID: o.peerID,
	}, EmitOptions{Deps: deps}); err != nil {
		return Result{}, fmt.Errorf("join_as_user: emit user: %w", err)
	}

	return run.Result(map[string]any{
		"channel_id": channelID,
	}), nil
}

func depRef(kind, id string) string {
	return kind + ":" + id
}
