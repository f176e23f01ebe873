package projector

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/quietmesh/core/pkg/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE messages (message_id TEXT PRIMARY KEY, channel_id TEXT, content TEXT)`)
	require.NoError(t, err)
	return db
}

func TestApplyInsertWithOnConflict(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.Begin()
	require.NoError(t, err)

	deltas := []types.Delta{{
		Op:    types.DeltaInsert,
		Table: "messages",
		Data:  map[string]any{"message_id": "m1", "channel_id": "c1", "content": "hi"},
		OnConflict: "message_id",
	}}
	require.NoError(t, Apply(tx, deltas))
	require.NoError(t, tx.Commit())

	var content string
	require.NoError(t, db.QueryRow(`SELECT content FROM messages WHERE message_id = ?`, "m1").Scan(&content))
	require.Equal(t, "hi", content)
}

func TestApplyUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, Apply(tx, []types.Delta{
		{Op: types.DeltaInsert, Table: "messages", Data: map[string]any{"message_id": "m1", "channel_id": "c1", "content": "hi"}},
	}))
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, Apply(tx, []types.Delta{
		{Op: types.DeltaUpdate, Table: "messages", Data: map[string]any{"content": "bye"}, Where: map[string]any{"message_id": "m1"}},
	}))
	require.NoError(t, tx.Commit())

	var content string
	require.NoError(t, db.QueryRow(`SELECT content FROM messages WHERE message_id = ?`, "m1").Scan(&content))
	require.Equal(t, "bye", content)

	tx, err = db.Begin()
	require.NoError(t, err)
	require.NoError(t, Apply(tx, []types.Delta{
		{Op: types.DeltaDelete, Table: "messages", Where: map[string]any{"message_id": "m1"}},
	}))
	require.NoError(t, tx.Commit())

	err = db.QueryRow(`SELECT content FROM messages WHERE message_id = ?`, "m1").Scan(&content)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRegistryProjectUnknownTypeYieldsNoDeltas(t *testing.T) {
	r := NewRegistry()
	deltas, err := r.Project(types.Envelope{EventType: "unregistered"})
	require.NoError(t, err)
	require.Nil(t, deltas)
}

func TestRegistryDuplicateRegistrationPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("message", func(types.Envelope) ([]types.Delta, error) { return nil, nil })
	require.Panics(t, func() {
		r.Register("message", func(types.Envelope) ([]types.Delta, error) { return nil, nil })
	})
}
