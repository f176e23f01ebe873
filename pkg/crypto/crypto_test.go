package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEventIDIsDeterministic checks the hashing law every caller of
// EventID relies on: the same input always yields the same id, and
// distinct inputs (almost certainly) yield distinct ids.
func TestEventIDIsDeterministic(t *testing.T) {
	a, err := EventID([]byte("canonical-plaintext"))
	require.NoError(t, err)
	b, err := EventID([]byte("canonical-plaintext"))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := EventID([]byte("different-plaintext"))
	require.NoError(t, err)
	require.NotEqual(t, a, c)
	require.Len(t, a, EventIDSize*2) // hex-encoded
}

// TestSignVerifyRoundTrip checks sign∘verify = accept, and that
// tampering with either the message or the signature makes verify
// reject, using the real ed25519 primitives (not crypto.ModeDummy).
func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateSignKeyPair()
	require.NoError(t, err)

	msg := []byte("canonical-signed-plaintext")
	sig, err := Sign(priv, msg)
	require.NoError(t, err)
	require.NoError(t, Verify(pub, msg, sig))

	require.Error(t, Verify(pub, []byte("tampered-plaintext"), sig))

	tamperedSig := append([]byte(nil), sig...)
	tamperedSig[0] ^= 0xFF
	require.ErrorIs(t, Verify(pub, msg, tamperedSig), ErrCryptoFailed)
}

func TestSignRejectsWrongSizedKey(t *testing.T) {
	_, err := Sign([]byte("too-short"), []byte("msg"))
	require.ErrorIs(t, err, ErrBadKeySize)
}

// TestSealSymmetricRoundTrip checks encrypt∘decrypt = id for the
// group/transit AEAD layer, and that a wrong secret or truncated
// ciphertext is rejected rather than silently producing garbage.
func TestSealSymmetricRoundTrip(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	plaintext := []byte("hello, general")
	ciphertext, err := SealSymmetric(secret, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	opened, err := OpenSymmetric(secret, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	wrongSecret, err := GenerateSecret()
	require.NoError(t, err)
	_, err = OpenSymmetric(wrongSecret, ciphertext)
	require.ErrorIs(t, err, ErrCryptoFailed)

	_, err = OpenSymmetric(secret, ciphertext[:nonceSize])
	require.ErrorIs(t, err, ErrCryptoFailed)
}

// TestSealToPeerRoundTrip checks encrypt∘decrypt = id for the
// KEM-style key_ref{kind:peer} delivery path.
func TestSealToPeerRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKXKeyPair()
	require.NoError(t, err)

	plaintext := []byte("shared channel secret")
	sealed, err := SealToPeer(pub, plaintext)
	require.NoError(t, err)

	opened, err := OpenFromPeer(pub, priv, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	otherPub, otherPriv, err := GenerateKXKeyPair()
	require.NoError(t, err)
	_, err = OpenFromPeer(otherPub, otherPriv, sealed)
	require.ErrorIs(t, err, ErrCryptoFailed)
}

// TestWrapUnwrapTransitRoundTrip checks the hop-by-hop transit layer's
// round trip against both suites: real (nacl secretbox underneath) and
// dummy (xor-with-tag), since pkg/handlers' transit-crypto stage is
// parameterized over Suite and must work under either.
func TestWrapUnwrapTransitRoundTrip(t *testing.T) {
	for _, suite := range []Suite{NewSuite(ModeReal), NewSuite(ModeDummy)} {
		secret, err := GenerateSecret()
		require.NoError(t, err)

		eventCiphertext := []byte("event-layer-ciphertext")
		wrapped, err := WrapTransit(suite, secret, eventCiphertext)
		require.NoError(t, err)

		unwrapped, err := UnwrapTransit(suite, secret, wrapped)
		require.NoError(t, err)
		require.Equal(t, eventCiphertext, unwrapped)
	}
}

// TestDummySuiteSignVerifyRoundTrip checks the same sign∘verify law
// against the dummy suite used throughout pkg/handlers' and pkg/flow's
// tests. Dummy mode's Sign/Verify are a symmetric XOR transform
// (xorWithTag/xorOpenTag), so the "public" and "private" key bytes must
// be identical for the round trip to succeed.
func TestDummySuiteSignVerifyRoundTrip(t *testing.T) {
	suite := NewSuite(ModeDummy)
	key := []byte("shared-dummy-key")
	msg := []byte("canonical-signed-plaintext")

	sig, err := suite.Sign(key, msg)
	require.NoError(t, err)
	require.NoError(t, suite.Verify(key, msg, sig))

	require.Error(t, suite.Verify(key, []byte("tampered"), sig))
	require.Error(t, suite.Verify([]byte("wrong-key"), msg, sig))
}

// TestDummySuiteSealOpenRoundTrip checks SealSymmetric/OpenSymmetric and
// SealToPeer/OpenFromPeer round trips under the dummy suite.
func TestDummySuiteSealOpenRoundTrip(t *testing.T) {
	suite := NewSuite(ModeDummy)
	secret := []byte("shared-dummy-secret")
	plaintext := []byte("hello, general")

	ciphertext, err := suite.SealSymmetric(secret, plaintext)
	require.NoError(t, err)
	opened, err := suite.OpenSymmetric(secret, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)

	sealed, err := suite.SealToPeer(secret, plaintext)
	require.NoError(t, err)
	fromPeer, err := suite.OpenFromPeer(secret, secret, sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, fromPeer)
}
