package handlers

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/secrets"
	"github.com/quietmesh/core/pkg/types"
)

// ValidatorFunc is a per-event-type validity check (spec.md §4.4
// "Validate... dispatches to a per-type validator function
// (envelope) → bool").
type ValidatorFunc func(e types.Envelope) bool

// ValidatorRegistry maps event_type to its ValidatorFunc.
type ValidatorRegistry struct {
	funcs map[string]ValidatorFunc
}

// NewValidatorRegistry returns an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{funcs: make(map[string]ValidatorFunc)}
}

// Register adds a validator for eventType.
func (r *ValidatorRegistry) Register(eventType string, fn ValidatorFunc) {
	r.funcs[eventType] = fn
}

// Validate runs the registered validator for e.EventType. A type with
// no registered validator is accepted by default — every event type the
// reference protocol declares (pkg/protocol) registers one explicitly;
// this default only matters for ad hoc event types used in tests.
func (r *ValidatorRegistry) Validate(e types.Envelope) bool {
	fn, ok := r.funcs[e.EventType]
	if !ok {
		return true
	}
	return fn(e)
}

// Validate builds the handler that dispatches to the per-type validator
// and purges the event on rejection (spec.md §4.4, §7 error kind 2).
// On acceptance it sets validated=true and, if the event has a known
// event_id, stores it and triggers the resolver's unblock path for
// every envelope parked on this event becoming available — unifying
// "store strictly before project" (spec.md §4.4 "Ordering") with the
// unblock trigger (spec.md §4.2 "Unblock path... when an envelope
// reaches validated=true with a known event_id") in one handler.
func Validate(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "07_validate",
		Filter: func(e types.Envelope) bool {
			return e.SigChecked && e.EventPlaintext != nil && !e.Validated &&
				(len(e.Deps) == 0 || e.DepsIncludedAndValid) &&
				(!hasGroupID(e) || e.IsGroupMember)
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			if !d.Validators.Validate(e) {
				if e.EventID != "" {
					if err := d.Store.Purge(tx, e.EventID, e.EventType, d.nowMs()); err != nil {
						return nil, fmt.Errorf("purge rejected event: %w", err)
					}
				}
				return nil, fmt.Errorf("%w: event type %s", types.ErrValidationFailed, e.EventType)
			}

			out := e
			out.Validated = true

			var emissions []types.Envelope
			if out.EventID != "" {
				if err := storeValidated(d, tx, out); err != nil {
					return nil, err
				}
				out.Stored = true
				rewoken, dropped, err := d.Resolver.Unblock(tx, out.EventType, out.EventID, d.RetryCap)
				if err != nil {
					return nil, fmt.Errorf("unblock: %w", err)
				}
				for _, dr := range dropped {
					d.Logger.Warn().Str("event_id", dr.EventID).Msg("parked envelope dropped at retry cap")
				}
				emissions = append(emissions, rewoken...)
			}
			emissions = append(emissions, out)
			return emissions, nil
		},
	}
}

func hasGroupID(e types.Envelope) bool {
	if e.EventPlaintext == nil {
		return false
	}
	_, ok := e.EventPlaintext["group_id"]
	return ok
}

func storeValidated(d *Deps, tx *sql.Tx, e types.Envelope) error {
	if e.EventType == "key" {
		return storeEventKey(d, e)
	}
	plaintextJSON, err := json.Marshal(e.EventPlaintext)
	if err != nil {
		return fmt.Errorf("encode plaintext for storage: %w", err)
	}
	return d.Store.Put(tx, types.StoredEvent{
		EventID:         e.EventID,
		EventType:       e.EventType,
		EventCiphertext: e.EventCiphertext,
		EventPlaintext:  plaintextJSON,
		OriginIP:        e.OriginIP,
		OriginPort:      e.OriginPort,
		ReceivedAt:      e.ReceivedAt,
		StoredAt:        d.nowMs(),
	})
}

// storeEventKey persists a validated key-distribution event's secret
// into local secret storage instead of the queryable event table: key
// material never belongs in a row a query-facade client could read
// (spec.md §4.4's storage step, specialized for event_type "key").
func storeEventKey(d *Deps, e types.Envelope) error {
	keyID, _ := e.EventPlaintext["key_id"].(string)
	groupID, _ := e.EventPlaintext["group_id"].(string)
	secretB64, _ := e.EventPlaintext["secret"].(string)
	if keyID == "" || secretB64 == "" {
		return fmt.Errorf("%w: key event missing key_id/secret", types.ErrMalformedEnvelope)
	}
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return fmt.Errorf("%w: decode key secret: %v", types.ErrMalformedEnvelope, err)
	}
	return d.Secrets.PutEventKey(secrets.EventKey{
		KeyID:     keyID,
		NetworkID: e.NetworkID,
		GroupID:   groupID,
		Secret:    secret,
		CreatedAt: d.nowMs(),
	})
}
