package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// KXKeySize is the size of a Curve25519 key-exchange key.
const KXKeySize = 32

// GenerateKXKeyPair returns a fresh Curve25519 key pair used for sealed
// (KEM-style) delivery to a peer identity.
func GenerateKXKeyPair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate kx keypair: %w", err)
	}
	return pub[:], priv[:], nil
}

// SealToPeer anonymously seals plaintext so only the holder of
// recipientPublicKey can open it (key_ref{kind: peer} per spec.md §4.3).
func SealToPeer(recipientPublicKey, plaintext []byte) ([]byte, error) {
	if len(recipientPublicKey) != KXKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes", ErrBadKeySize, KXKeySize)
	}
	var pub [KXKeySize]byte
	copy(pub[:], recipientPublicKey)

	sealed, err := box.SealAnonymous(nil, plaintext, &pub, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal to peer: %w", err)
	}
	return sealed, nil
}

// OpenFromPeer opens an anonymously sealed message using the recipient's
// key pair. Failure maps to ErrCryptoFailed.
func OpenFromPeer(recipientPublicKey, recipientPrivateKey, sealed []byte) ([]byte, error) {
	if len(recipientPublicKey) != KXKeySize || len(recipientPrivateKey) != KXKeySize {
		return nil, fmt.Errorf("%w: keys must be %d bytes", ErrBadKeySize, KXKeySize)
	}
	var pub, priv [KXKeySize]byte
	copy(pub[:], recipientPublicKey)
	copy(priv[:], recipientPrivateKey)

	plaintext, ok := box.OpenAnonymous(nil, sealed, &pub, &priv)
	if !ok {
		return nil, fmt.Errorf("%w: box open failed", ErrCryptoFailed)
	}
	return plaintext, nil
}
