package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietmesh/core/pkg/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestPutIsIdempotent(t *testing.T) {
	d := openTestDB(t)
	e := types.StoredEvent{EventID: "e1", EventType: "message", EventCiphertext: []byte("ct"), StoredAt: 1}

	require.NoError(t, d.Put(nil, e))
	require.NoError(t, d.Put(nil, e)) // re-store is a no-op

	got, ok, err := d.Get(nil, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("ct"), got.EventCiphertext)
}

func TestPurgeRetainsIDAndClearsBody(t *testing.T) {
	d := openTestDB(t)
	e := types.StoredEvent{EventID: "e2", EventType: "message", EventCiphertext: []byte("ct"), EventPlaintext: []byte("pt"), StoredAt: 1}
	require.NoError(t, d.Put(nil, e))

	require.NoError(t, d.Purge(nil, "e2", "message", 99))

	got, ok, err := d.Get(nil, "e2")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Purged)
	require.Empty(t, got.EventCiphertext)

	exists, err := d.Exists(nil, "e2")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPurgeWithoutPriorStoreInsertsTombstone(t *testing.T) {
	d := openTestDB(t)
	require.NoError(t, d.Purge(nil, "never-stored", "message", 5))

	exists, err := d.Exists(nil, "never-stored")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestBlockedByDepInsertionOrder(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.PutBlocked(nil, "e1", []byte(`{"a":1}`), []string{"peer:p1"}, 0, 100))
	require.NoError(t, d.PutBlocked(nil, "e2", []byte(`{"a":2}`), []string{"peer:p1"}, 0, 200))

	rows, err := d.BlockedByDep(nil, "peer:p1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "e1", rows[0].EventID)
	require.Equal(t, "e2", rows[1].EventID)

	require.NoError(t, d.DeleteBlocked(nil, "e1"))
	rows, err = d.BlockedByDep(nil, "peer:p1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "e2", rows[0].EventID)
}

func TestJobStatePersistsOnlyOnOK(t *testing.T) {
	d := openTestDB(t)

	_, _, found, err := d.GetJobState(nil, "cleanup")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, d.PutJobState(nil, "cleanup", []byte(`{"n":1}`), 10))
	state, updated, found, err := d.GetJobState(nil, "cleanup")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(10), updated)
	require.JSONEq(t, `{"n":1}`, string(state))

	require.NoError(t, d.RecordJobRun(nil, "cleanup", true, 10))
	require.NoError(t, d.RecordJobRun(nil, "cleanup", false, 20))

	// Recording runs, failed or not, leaves the persisted state as it was.
	state, updated, found, err = d.GetJobState(nil, "cleanup")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(10), updated)
	require.JSONEq(t, `{"n":1}`, string(state))
}
