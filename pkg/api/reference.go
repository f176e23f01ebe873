package api

import (
	"context"

	"github.com/quietmesh/core/pkg/flow"
	"github.com/quietmesh/core/pkg/protocol"
	"github.com/quietmesh/core/pkg/types"
)

// RegisterReferenceOperations wires the reference protocol's commands,
// queries, and flows into a: message.create, channel.create,
// peer.announce as commands; messages_by_channel as a query;
// user.join_as_user as a flow (spec.md §8 scenario 6).
func RegisterReferenceOperations(a *API) {
	a.RegisterCommand("message.create", func(ctx context.Context, p map[string]any) (flow.Result, error) {
		id, err := a.orch.Emit(protocol.EventMessage, map[string]any{
			protocol.FieldChannelID: p[protocol.FieldChannelID],
			protocol.FieldAuthorID:  p[protocol.FieldAuthorID],
			protocol.FieldContent:   p[protocol.FieldContent],
		}, flow.EmitOptions{
			Deps:         depsFromParams(p),
			KeyRef:       keyRefFromParams(p),
			TransitKeyID: transitKeyRefFromParams(p),
		})
		return commandResult(protocol.EventMessage, id, err)
	})

	a.RegisterCommand("channel.create", func(ctx context.Context, p map[string]any) (flow.Result, error) {
		id, err := a.orch.Emit(protocol.EventChannel, map[string]any{
			protocol.FieldChannelID: p[protocol.FieldChannelID],
		}, flow.EmitOptions{Deps: depsFromParams(p)})
		return commandResult(protocol.EventChannel, id, err)
	})

	a.RegisterCommand("peer.announce", func(ctx context.Context, p map[string]any) (flow.Result, error) {
		id, err := a.orch.Emit(protocol.EventPeer, map[string]any{
			protocol.FieldPeerID:        p[protocol.FieldPeerID],
			protocol.FieldSignPublicKey: p[protocol.FieldSignPublicKey],
			protocol.FieldKXPublicKey:   p[protocol.FieldKXPublicKey],
			protocol.FieldDisplayName:   p[protocol.FieldDisplayName],
		}, flow.EmitOptions{})
		return commandResult(protocol.EventPeer, id, err)
	})

	a.RegisterQuery("messages_by_channel", func(ctx context.Context, p map[string]any) ([]map[string]any, error) {
		channelID, _ := p[protocol.FieldChannelID].(string)
		return a.facade.Query(ctx, `SELECT event_id, channel_id, author_id, content FROM messages WHERE channel_id = ? ORDER BY rowid`, channelID)
	})

	a.RegisterFlow("user.join_as_user", func(ctx context.Context, p map[string]any) (flow.Result, error) {
		userID, _ := p[protocol.FieldUserID].(string)
		displayName, _ := p[protocol.FieldDisplayName].(string)
		channelID, _ := p[protocol.FieldChannelID].(string)
		inviteID, _ := p["invite_event_id"].(string)
		return a.orch.JoinAsUser(displayName, userID, channelID, inviteID)
	})
}

// commandResult wraps a single Orchestrator.Emit call into the {ids,
// data} shape every Command returns (spec.md §6): the emitted event's
// type maps to its id, since a Command always emits exactly one event.
func commandResult(eventType, id string, err error) (flow.Result, error) {
	if err != nil {
		return flow.Result{}, err
	}
	return flow.Result{IDs: map[string]string{eventType: id}}, nil
}

func depsFromParams(p map[string]any) []string {
	raw, ok := p["deps"].([]string)
	if !ok {
		return nil
	}
	return raw
}

// keyRefFromParams lets a caller pass an explicit key_ref through the
// untyped params map as "key_ref_kind"/"key_ref_id" (e.g. for
// message.create against an encrypted channel); absent both, the
// command emits without one, matching a local-only or not-yet-sealed
// event.
func keyRefFromParams(p map[string]any) *types.KeyRef {
	kind, _ := p["key_ref_kind"].(string)
	id, _ := p["key_ref_id"].(string)
	if kind == "" || id == "" {
		return nil
	}
	return &types.KeyRef{Kind: types.KeyRefKind(kind), ID: id}
}

// transitKeyRefFromParams reads the hop-by-hop transit key a caller
// wants this command's event wrapped under before it leaves the node.
// Absent it, the event stays Outgoing but never reaches transit-encrypt
// (see flow.EmitOptions.TransitKeyID).
func transitKeyRefFromParams(p map[string]any) *types.KeyRef {
	id, _ := p["transit_key_id"].(string)
	if id == "" {
		return nil
	}
	return &types.KeyRef{Kind: types.KeyRefKindKey, ID: id}
}
