package resolver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietmesh/core/pkg/secrets"
	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

func newTestResolver(t *testing.T) (*Resolver, *store.DB) {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sec, err := secrets.Open(t.TempDir() + "/secrets.db")
	require.NoError(t, err)
	t.Cleanup(func() { sec.Close() })

	return New(db, sec), db
}

func putValidatedEvent(t *testing.T, db *store.DB, eventType, id string, plaintext map[string]any) {
	t.Helper()
	pt, err := json.Marshal(plaintext)
	require.NoError(t, err)
	require.NoError(t, db.Put(nil, types.StoredEvent{
		EventID: id, EventType: eventType, EventPlaintext: pt, StoredAt: 1,
	}))
}

func TestResolveAllDepsPresent(t *testing.T) {
	r, db := newTestResolver(t)
	putValidatedEvent(t, db, "identity", "i1", map[string]any{"user_id": "u1"})
	putValidatedEvent(t, db, "channel", "c1", map[string]any{"name": "general"})

	env := types.Envelope{EventType: "message", Deps: []string{"identity:i1", "channel:c1"}}
	out, err := r.Resolve(nil, env)
	require.NoError(t, err)
	require.True(t, out.DepsIncludedAndValid)
	require.Len(t, out.ResolvedDeps, 2)
	require.Equal(t, "i1", out.ResolvedDeps["identity:i1"].EventID)
}

func TestResolveMissingDepParks(t *testing.T) {
	r, _ := newTestResolver(t)

	env := types.Envelope{EventID: "m1", EventType: "message", Deps: []string{"peer:p2"}}
	out, err := r.Resolve(nil, env)
	require.NoError(t, err)
	require.False(t, out.DepsIncludedAndValid)
}

func TestUnblockRewakesInInsertionOrderAndIncrementsRetry(t *testing.T) {
	r, _ := newTestResolver(t)

	e1 := types.Envelope{EventID: "e1", Deps: []string{"peer:p2"}}
	e2 := types.Envelope{EventID: "e2", Deps: []string{"peer:p2"}}
	_, err := r.Resolve(nil, e1)
	require.NoError(t, err)
	_, err = r.Resolve(nil, e2)
	require.NoError(t, err)

	rewoken, dropped, err := r.Unblock(nil, "peer", "p2", 100)
	require.NoError(t, err)
	require.Empty(t, dropped)
	require.Len(t, rewoken, 2)
	require.Equal(t, "e1", rewoken[0].EventID)
	require.Equal(t, "e2", rewoken[1].EventID)
	require.True(t, rewoken[0].Unblocked)
	require.Equal(t, 1, rewoken[0].RetryCount)
	require.False(t, rewoken[0].DepsIncludedAndValid)
}

func TestUnblockDropsAtRetryCap(t *testing.T) {
	r, _ := newTestResolver(t)
	e1 := types.Envelope{EventID: "e1", Deps: []string{"peer:p2"}, RetryCount: 100}
	_, err := r.Resolve(nil, e1)
	require.NoError(t, err)

	rewoken, dropped, err := r.Unblock(nil, "peer", "p2", 100)
	require.NoError(t, err)
	require.Empty(t, rewoken)
	require.Len(t, dropped, 1)
}

func TestResolveMalformedDepRef(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.Resolve(nil, types.Envelope{Deps: []string{"no-colon-here"}})
	require.ErrorIs(t, err, types.ErrMalformedEnvelope)
}
