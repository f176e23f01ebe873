package handlers

import (
	"database/sql"
	"fmt"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// MembershipChecker validates that a claimed group_member_id belongs to
// group_id in projected state (spec.md §4.4 "Membership check").
// Projector-owned tables differ per protocol, so quietmesh leaves the
// lookup itself pluggable rather than hardcoding a projected-table
// query into this package.
type MembershipChecker interface {
	IsMember(tx *sql.Tx, groupID, userID, groupMemberID string) (bool, error)
}

// staticMembership is the zero-configuration MembershipChecker: it
// accepts a claim exactly when group_member_id equals user_id, and does
// not look group_id up in any projected table. Real deployments supply a checker
// backed by the channel/group-membership projected table; quietmesh's
// reference protocol (pkg/protocol) does not itself declare a
// membership table, so this is the honest default rather than a stub
// pretending to validate something no projector populates.
type staticMembership struct{}

func (staticMembership) IsMember(tx *sql.Tx, groupID, userID, groupMemberID string) (bool, error) {
	return userID == groupMemberID, nil
}

// Membership builds the handler that checks claimed group membership
// for any event whose plaintext carries a group_id (spec.md §4.4).
// Events without a group_id pass through untouched by this handler
// (their filter simply never matches).
func Membership(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "06_membership",
		Filter: func(e types.Envelope) bool {
			if e.EventPlaintext == nil || !e.SigChecked || e.IsGroupMember {
				return false
			}
			_, hasGroup := e.EventPlaintext["group_id"]
			return hasGroup
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			groupID, _ := e.EventPlaintext["group_id"].(string)
			userID, _ := e.EventPlaintext["user_id"].(string)
			memberID, _ := e.EventPlaintext["group_member_id"].(string)

			ok, err := d.Members.IsMember(tx, groupID, userID, memberID)
			if err != nil {
				return nil, fmt.Errorf("membership check: %w", err)
			}
			if !ok {
				return nil, fmt.Errorf("%w: user %s is not group_member_id %s in group %s", types.ErrMembershipFailed, userID, memberID, groupID)
			}
			out := e
			out.IsGroupMember = true
			return []types.Envelope{out}, nil
		},
	}
}
