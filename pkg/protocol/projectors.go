package protocol

import (
	"github.com/quietmesh/core/pkg/projector"
	"github.com/quietmesh/core/pkg/types"
)

// RegisterProjectors installs every reference projector into reg.
// identity and key events register no projector: identity is
// local-only by convention and key events are written to secret storage
// by pkg/handlers' Validate stage, so the Project stage finds no
// projector for them and applies no deltas.
func RegisterProjectors(reg *projector.Registry) {
	reg.Register(EventPeer, projectPeer)
	reg.Register(EventChannel, projectChannel)
	reg.Register(EventMessage, projectMessage)
	reg.Register(EventUser, projectUser)
	reg.Register(EventInvite, projectInvite)
}

func str(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func projectPeer(e types.Envelope) ([]types.Delta, error) {
	return []types.Delta{{
		Op:    types.DeltaInsert,
		Table: "peers",
		Data: map[string]any{
			"peer_id":         str(e.EventPlaintext, FieldPeerID),
			"sign_public_key": str(e.EventPlaintext, FieldSignPublicKey),
			"kx_public_key":   str(e.EventPlaintext, FieldKXPublicKey),
			"display_name":    str(e.EventPlaintext, FieldDisplayName),
			"event_id":        e.EventID,
		},
		OnConflict: "peer_id",
	}}, nil
}

func projectChannel(e types.Envelope) ([]types.Delta, error) {
	return []types.Delta{{
		Op:    types.DeltaInsert,
		Table: "channels",
		Data: map[string]any{
			"channel_id": str(e.EventPlaintext, FieldChannelID),
			"event_id":   e.EventID,
		},
		OnConflict: "channel_id",
	}}, nil
}

func projectMessage(e types.Envelope) ([]types.Delta, error) {
	return []types.Delta{{
		Op:    types.DeltaInsert,
		Table: "messages",
		Data: map[string]any{
			"event_id":   e.EventID,
			"channel_id": str(e.EventPlaintext, FieldChannelID),
			"author_id":  str(e.EventPlaintext, FieldAuthorID),
			"content":    str(e.EventPlaintext, FieldContent),
		},
		OnConflict: "event_id",
	}}, nil
}

func projectUser(e types.Envelope) ([]types.Delta, error) {
	return []types.Delta{{
		Op:    types.DeltaInsert,
		Table: "users",
		Data: map[string]any{
			"user_id":  str(e.EventPlaintext, FieldUserID),
			"peer_id":  str(e.EventPlaintext, FieldPeerID),
			"event_id": e.EventID,
		},
		OnConflict: "user_id",
	}}, nil
}

func projectInvite(e types.Envelope) ([]types.Delta, error) {
	return []types.Delta{{
		Op:    types.DeltaInsert,
		Table: "invites",
		Data: map[string]any{
			"event_id":   e.EventID,
			"channel_id": str(e.EventPlaintext, FieldChannelID),
			"invitee_id": str(e.EventPlaintext, FieldInviteeID),
		},
		OnConflict: "event_id",
	}}, nil
}
