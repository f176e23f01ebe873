package secrets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSigningKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.GetSigningKey("peer-1")
	require.NoError(t, err)
	require.False(t, ok)

	want := SigningKey{PeerID: "peer-1", NetworkID: "net-1", PublicKey: []byte("pub"), PrivateKey: []byte("priv"), CreatedAt: 42}
	require.NoError(t, s.PutSigningKey(want))

	got, ok, err := s.GetSigningKey("peer-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestTransitAndEventKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tk := TransitKey{KeyID: "t1", NetworkID: "net-1", Secret: []byte("secret"), CreatedAt: 1, ExpiresAt: 100}
	require.NoError(t, s.PutTransitKey(tk))
	gotTK, ok, err := s.GetTransitKey("t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, tk, gotTK)

	ek := EventKey{KeyID: "e1", NetworkID: "net-1", GroupID: "g1", Secret: []byte("gsecret"), CreatedAt: 2, ExpiresAt: 200}
	require.NoError(t, s.PutEventKey(ek))
	gotEK, ok, err := s.GetEventKey("e1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ek, gotEK)
}

func TestUpsertOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.PutSigningKey(SigningKey{PeerID: "p", CreatedAt: 1}))
	require.NoError(t, s.PutSigningKey(SigningKey{PeerID: "p", CreatedAt: 2}))

	got, ok, err := s.GetSigningKey("p")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), got.CreatedAt)
}
