package crypto

import "fmt"

// WrapTransit encrypts an event-layer ciphertext for the hop-by-hop
// transit layer, keyed by a transit secret (spec.md §4.3, "transit
// crypto... on encrypt, yields OutgoingTransitEnvelope").
func WrapTransit(suite Suite, transitSecret, eventCiphertext []byte) ([]byte, error) {
	wrapped, err := suite.SealSymmetric(transitSecret, eventCiphertext)
	if err != nil {
		return nil, fmt.Errorf("wrap transit: %w", err)
	}
	return wrapped, nil
}

// UnwrapTransit authenticates and removes the transit layer, returning
// the event-layer ciphertext underneath.
func UnwrapTransit(suite Suite, transitSecret, transitCiphertext []byte) ([]byte, error) {
	eventCiphertext, err := suite.OpenSymmetric(transitSecret, transitCiphertext)
	if err != nil {
		return nil, fmt.Errorf("unwrap transit: %w", err)
	}
	return eventCiphertext, nil
}
