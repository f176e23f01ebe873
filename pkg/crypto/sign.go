package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// GenerateSignKeyPair returns a fresh ed25519 key pair used for event
// signing. ed25519 is stdlib rather than an ecosystem dependency because
// no library in the corpus offers an alternative signature primitive;
// this mirrors the teacher's own use of crypto/x509 and crypto/rsa
// (also stdlib) for its certificate signing concern.
func GenerateSignKeyPair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate sign keypair: %w", err)
	}
	return pub, priv, nil
}

// Sign signs canonicalPlaintext with the identity's private key.
func Sign(privateKey, canonicalPlaintext []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes", ErrBadKeySize, ed25519.PrivateKeySize)
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), canonicalPlaintext), nil
}

// Verify checks a signature against canonicalPlaintext and the signer's
// public key. Failure maps to ErrCryptoFailed, matching spec.md §7
// error kind 3.
func Verify(publicKey, canonicalPlaintext, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key must be %d bytes", ErrBadKeySize, ed25519.PublicKeySize)
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), canonicalPlaintext, signature) {
		return fmt.Errorf("%w: signature verification failed", ErrCryptoFailed)
	}
	return nil
}
