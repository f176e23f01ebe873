package dispatcher

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quietmesh/core/pkg/store"
	"github.com/quietmesh/core/pkg/types"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunFansOutToEveryMatchingHandlerInRegistryOrder(t *testing.T) {
	db := openTestDB(t)
	var order []string

	handlers := []Handler{
		{
			Name:   "z_last",
			Filter: func(e types.Envelope) bool { return e.EventType == "message" },
			Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
				order = append(order, "z_last")
				return nil, nil
			},
		},
		{
			Name:   "a_first",
			Filter: func(e types.Envelope) bool { return e.EventType == "message" },
			Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
				order = append(order, "a_first")
				return nil, nil
			},
		},
	}

	d := New(db, 100, handlers)
	dropped := d.Run([]types.Envelope{{EventType: "message"}})
	require.Empty(t, dropped)
	require.Equal(t, []string{"a_first", "z_last"}, order)
}

func TestRunDrainsEmittedEnvelopes(t *testing.T) {
	db := openTestDB(t)
	seen := 0

	handlers := []Handler{
		{
			Name:   "stage1",
			Filter: func(e types.Envelope) bool { return e.EventType == "a" },
			Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
				return []types.Envelope{{EventType: "b", EventID: "e1"}}, nil
			},
		},
		{
			Name:   "stage2",
			Filter: func(e types.Envelope) bool { return e.EventType == "b" },
			Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
				seen++
				return nil, nil
			},
		},
	}

	d := New(db, 100, handlers)
	dropped := d.Run([]types.Envelope{{EventType: "a"}})
	require.Empty(t, dropped)
	require.Equal(t, 1, seen)
}

func TestRunDropsOnRetryCapExceeded(t *testing.T) {
	db := openTestDB(t)

	handlers := []Handler{
		{
			Name:   "loop",
			Filter: func(e types.Envelope) bool { return e.EventType == "loop" && e.RetryCount < 5 },
			Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
				e.RetryCount++ // pre-increment so applyRetryAccounting still matches same lineage and adds one more
				return []types.Envelope{e}, nil
			},
		},
	}

	d := New(db, 2, handlers)
	dropped := d.Run([]types.Envelope{{EventType: "loop", EventID: "e1"}})
	require.NotEmpty(t, dropped)
	require.ErrorIs(t, dropped[len(dropped)-1].Reason, types.ErrRetryCapExceeded)
}

func TestRunRollsBackOnHandlerError(t *testing.T) {
	db := openTestDB(t)

	handlers := []Handler{
		{
			Name:   "fails",
			Filter: func(e types.Envelope) bool { return true },
			Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
				return nil, types.ErrCryptoFailed
			},
		},
	}

	d := New(db, 100, handlers)
	dropped := d.Run([]types.Envelope{{EventType: "x"}})
	require.Len(t, dropped, 1)
	require.ErrorIs(t, dropped[0].Reason, types.ErrCryptoFailed)
}
