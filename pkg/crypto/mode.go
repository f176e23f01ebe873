package crypto

// Mode selects between real cryptographic primitives and a
// deterministic dummy mode for tests (spec.md §6, CRYPTO_MODE).
type Mode string

const (
	ModeReal  Mode = "real"
	ModeDummy Mode = "dummy"
)

// Suite bundles the primitives a handler needs, so handlers depend on an
// interface rather than on package-level functions directly — this is
// what lets CRYPTO_MODE=dummy substitute a fixed, non-random
// implementation in tests without any handler code changing.
type Suite interface {
	EventID(canonicalSignedPlaintext []byte) (string, error)
	SealSymmetric(secret, plaintext []byte) ([]byte, error)
	OpenSymmetric(secret, ciphertext []byte) ([]byte, error)
	SealToPeer(recipientPublicKey, plaintext []byte) ([]byte, error)
	OpenFromPeer(recipientPublicKey, recipientPrivateKey, sealed []byte) ([]byte, error)
	Sign(privateKey, canonicalPlaintext []byte) ([]byte, error)
	Verify(publicKey, canonicalPlaintext, signature []byte) error
}

// NewSuite returns the real or dummy Suite for the given mode.
func NewSuite(mode Mode) Suite {
	if mode == ModeDummy {
		return dummySuite{}
	}
	return realSuite{}
}

type realSuite struct{}

func (realSuite) EventID(p []byte) (string, error)         { return EventID(p) }
func (realSuite) SealSymmetric(s, p []byte) ([]byte, error) { return SealSymmetric(s, p) }
func (realSuite) OpenSymmetric(s, c []byte) ([]byte, error) { return OpenSymmetric(s, c) }
func (realSuite) SealToPeer(pub, p []byte) ([]byte, error)  { return SealToPeer(pub, p) }
func (realSuite) OpenFromPeer(pub, priv, s []byte) ([]byte, error) {
	return OpenFromPeer(pub, priv, s)
}
func (realSuite) Sign(priv, p []byte) ([]byte, error)    { return Sign(priv, p) }
func (realSuite) Verify(pub, p, sig []byte) error        { return Verify(pub, p, sig) }

// dummySuite implements Suite with fixed, non-random transforms so
// tests can assert exact bytes without random nonces/keys in the way.
// Verify rejects a signature that does not match the message; the
// Open methods reject only a ciphertext whose length tag does not match
// its body, not altered bytes. It is not safe for production use — gated entirely
// behind CRYPTO_MODE=dummy.
type dummySuite struct{}

func (dummySuite) EventID(p []byte) (string, error) { return EventID(p) }

func (dummySuite) SealSymmetric(secret, plaintext []byte) ([]byte, error) {
	return xorWithTag(secret, plaintext), nil
}

func (dummySuite) OpenSymmetric(secret, ciphertext []byte) ([]byte, error) {
	return xorOpenTag(secret, ciphertext)
}

func (dummySuite) SealToPeer(recipientPublicKey, plaintext []byte) ([]byte, error) {
	return xorWithTag(recipientPublicKey, plaintext), nil
}

func (dummySuite) OpenFromPeer(recipientPublicKey, _ []byte, sealed []byte) ([]byte, error) {
	return xorOpenTag(recipientPublicKey, sealed)
}

func (dummySuite) Sign(privateKey, canonicalPlaintext []byte) ([]byte, error) {
	return xorWithTag(privateKey, canonicalPlaintext), nil
}

func (dummySuite) Verify(publicKey, canonicalPlaintext, signature []byte) error {
	recovered, err := xorOpenTag(publicKey, signature)
	if err != nil {
		return err
	}
	if string(recovered) != string(canonicalPlaintext) {
		return ErrCryptoFailed
	}
	return nil
}
