// Package resolver implements resolve_deps: the contract that a
// downstream handler observing deps_included_and_valid=true may rely on
// resolved_deps containing every entry in deps (spec.md §4.2).
//
// Grounded directly on spec.md §4.2 — no single teacher file matches
// this shape — with persistence delegated to pkg/store's blocked_events
// / blocked_event_deps tables and local-only secret lookups delegated
// to pkg/secrets.
package resolver

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quietmesh/core/pkg/secrets"
	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

// Resolver resolves dependency references against the validated-event
// store and local secret tables, parking envelopes that cannot yet be
// satisfied.
type Resolver struct {
	store   *store.DB
	secrets *secrets.Store
	now     func() time.Time
}

// New builds a Resolver over db and secretStore.
func New(db *store.DB, secretStore *secrets.Store) *Resolver {
	return &Resolver{store: db, secrets: secretStore, now: time.Now}
}

// Resolve attempts to satisfy every entry of e.Deps. On full success it
// returns e with DepsIncludedAndValid=true and ResolvedDeps populated.
// On partial failure it parks e (persisting a blocked record and
// dependency index rows) and returns a companion envelope with
// MissingDeps=true and MissingDepList set, per spec.md §4.2 step 4.
func (r *Resolver) Resolve(tx *sql.Tx, e types.Envelope) (types.Envelope, error) {
	if len(e.Deps) == 0 {
		e.DepsIncludedAndValid = true
		return e, nil
	}

	resolved := make(map[string]types.ResolvedDep, len(e.Deps))
	var missing []string

	for _, refStr := range e.Deps {
		ref, err := types.ParseDepRef(refStr)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("resolve_deps: %w", err)
		}
		dep, ok, err := r.resolveOne(tx, ref)
		if err != nil {
			return types.Envelope{}, fmt.Errorf("resolve_deps %s: %w", refStr, err)
		}
		if !ok {
			missing = append(missing, refStr)
			continue
		}
		resolved[refStr] = dep
	}

	if len(missing) > 0 {
		if err := r.park(tx, e, missing); err != nil {
			return e, err
		}
		e.MissingDeps = true
		e.MissingDepList = missing
		return e, nil
	}

	e.ResolvedDeps = resolved
	e.DepsIncludedAndValid = true
	e.MissingDeps = false
	e.MissingDepList = nil
	return e, nil
}

// resolveOne resolves a single dependency reference. Identity and peer
// kinds additionally attach a local private key when this node holds
// one for that id (the self-created path, spec.md §4.2 step 2).
// Transit-key kinds resolve purely from local secret storage (step 3).
// Everything else resolves against the validated-event store (step 1).
func (r *Resolver) resolveOne(tx *sql.Tx, ref types.DepRef) (types.ResolvedDep, bool, error) {
	switch ref.Kind {
	case "transit_key":
		tk, ok, err := r.secrets.GetTransitKey(ref.ID)
		if err != nil || !ok {
			return types.ResolvedDep{}, false, err
		}
		return types.ResolvedDep{Kind: types.ResolvedKindTransitKey, Secret: tk.Secret, NetworkID: tk.NetworkID}, true, nil

	case "identity", "peer":
		dep, ok, err := r.resolveValidatedEvent(tx, ref)
		if err != nil {
			return types.ResolvedDep{}, false, err
		}
		if !ok {
			return types.ResolvedDep{}, false, nil
		}
		if sk, found, err := r.secrets.GetSigningKey(ref.ID); err == nil && found {
			dep.Kind = types.ResolvedKindIdentity
			dep.PrivateKey = sk.PrivateKey
		}
		return dep, true, nil

	default:
		return r.resolveValidatedEvent(tx, ref)
	}
}

func (r *Resolver) resolveValidatedEvent(tx *sql.Tx, ref types.DepRef) (types.ResolvedDep, bool, error) {
	stored, ok, err := r.store.Get(tx, ref.ID)
	if err != nil {
		return types.ResolvedDep{}, false, err
	}
	if !ok || stored.Purged || len(stored.EventPlaintext) == 0 {
		return types.ResolvedDep{}, false, nil
	}
	var plaintext map[string]any
	if err := json.Unmarshal(stored.EventPlaintext, &plaintext); err != nil {
		return types.ResolvedDep{}, false, fmt.Errorf("decode dependency plaintext: %w", err)
	}
	return types.ResolvedDep{
		Kind:      types.ResolvedKindValidatedEvent,
		Plaintext: plaintext,
		EventType: stored.EventType,
		EventID:   stored.EventID,
	}, true, nil
}

// park persists e as a blocked record and indexes it by each missing
// dependency. Resolve then hands e back with MissingDeps=true and
// MissingDepList set; per spec.md §4.2 the main envelope is dropped from
// further dispatch once parked.
func (r *Resolver) park(tx *sql.Tx, e types.Envelope, missing []string) error {
	key := e.EventID
	if key == "" {
		key = "blocked-" + uuid.NewString()
	}
	envJSON, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode envelope for park: %w", err)
	}
	return r.store.PutBlocked(tx, key, envJSON, missing, e.RetryCount, r.now().UnixMilli())
}

// Unblock is called when an event of the given type/id is newly
// validated (or when missing_deps=true signals arrival-by-id). It
// rewakes every envelope parked on that dependency, in insertion order,
// clearing deps_included_and_valid, setting unblocked=true, and
// incrementing retry_count (spec.md §4.2 "Unblock path").
// Envelopes whose retry_count would exceed the cap are dropped instead
// of rewoken (spec.md §4.2 "Retry cap").
func (r *Resolver) Unblock(tx *sql.Tx, eventType, eventID string, retryCap int) ([]types.Envelope, []types.Envelope, error) {
	ref := (types.DepRef{Kind: eventType, ID: eventID}).String()
	rows, err := r.store.BlockedByDep(tx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("unblock lookup: %w", err)
	}

	var rewoken, dropped []types.Envelope
	for _, row := range rows {
		var env types.Envelope
		if err := row.DecodeEnvelope(&env); err != nil {
			return nil, nil, fmt.Errorf("decode parked envelope: %w", err)
		}
		if err := r.store.DeleteBlocked(tx, row.EventID); err != nil {
			return nil, nil, fmt.Errorf("delete blocked record: %w", err)
		}

		env.RetryCount++
		if env.RetryCount > retryCap {
			dropped = append(dropped, env)
			continue
		}
		env.DepsIncludedAndValid = false
		env.Unblocked = true
		env.MissingDeps = false
		rewoken = append(rewoken, env)
	}
	return rewoken, dropped, nil
}
