package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// SecretSize is the length of a group or transit symmetric secret.
const SecretSize = 32

// nonceSize matches secretbox's 24-byte nonce.
const nonceSize = 24

// GenerateSecret returns a fresh random symmetric secret suitable for a
// transit key or an event (group) key.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}

// SealSymmetric authenticates and encrypts plaintext under secret,
// prepending a random nonce to the ciphertext (the convention warren's
// secrets manager uses for its AES-GCM nonces, carried over here for
// secretbox).
func SealSymmetric(secret, plaintext []byte) ([]byte, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("%w: secret must be %d bytes", ErrBadKeySize, SecretSize)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	var key [SecretSize]byte
	copy(key[:], secret)

	out := make([]byte, nonceSize, nonceSize+len(plaintext)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, &key), nil
}

// OpenSymmetric authenticates and decrypts a SealSymmetric ciphertext.
// Failure (bad MAC, truncated input, wrong key) returns ErrCryptoFailed
// so handlers can map it onto the "crypto failure" error kind without
// inspecting the underlying cause.
func OpenSymmetric(secret, ciphertext []byte) ([]byte, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("%w: secret must be %d bytes", ErrBadKeySize, SecretSize)
	}
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrCryptoFailed)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	var key [SecretSize]byte
	copy(key[:], secret)

	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("%w: secretbox authentication failed", ErrCryptoFailed)
	}
	return plaintext, nil
}
