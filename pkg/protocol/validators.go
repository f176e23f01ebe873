package protocol

import (
	"github.com/quietmesh/core/pkg/handlers"
	"github.com/quietmesh/core/pkg/types"
)

// RegisterValidators installs every reference validator into reg. A
// validator only checks shape — the fields required for the projector
// and later crypto/membership stages to function — not business
// policy, matching the teacher's scheduler.go functions, each a small
// pure check over one input shape.
func RegisterValidators(reg *handlers.ValidatorRegistry) {
	reg.Register(EventIdentity, requireFields(FieldPeerID))
	reg.Register(EventPeer, requireFields(FieldPeerID, FieldSignPublicKey, FieldKXPublicKey))
	reg.Register(EventKey, requireFields(FieldKeyID, FieldSecret))
	reg.Register(EventChannel, requireFields(FieldChannelID))
	reg.Register(EventMessage, requireFields(FieldChannelID, FieldAuthorID, FieldContent))
	reg.Register(EventUser, requireFields(FieldUserID, FieldPeerID))
	reg.Register(EventInvite, requireFields(FieldChannelID, FieldInviteeID))
}

func requireFields(fields ...string) handlers.ValidatorFunc {
	return func(e types.Envelope) bool {
		for _, f := range fields {
			v, ok := e.EventPlaintext[f]
			if !ok {
				return false
			}
			if s, isStr := v.(string); isStr && s == "" {
				return false
			}
		}
		return true
	}
}
