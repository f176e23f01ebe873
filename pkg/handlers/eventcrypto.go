package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// EventCrypto builds the handler that unseals or encrypts the
// event-layer body, keyed by the envelope's key_ref tagged union
// (spec.md §4.3 "Event crypto"). A kind=peer key_ref is a KEM unseal
// using the local identity's private key; a kind=key key_ref is AEAD
// against a shared group/channel secret. An unsealed key-type event
// leaves this stage with sig_checked=true, since the unseal itself
// authenticates it; validated is not set here, so the event still goes
// through Validate, which marks it validated and stores the key.
func EventCrypto(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "04_event_crypto",
		Filter: func(e types.Envelope) bool {
			return isEventDecrypt(e) || isEventEncrypt(e)
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			if isEventDecrypt(e) {
				return eventDecrypt(d, e)
			}
			return eventEncrypt(d, e)
		},
	}
}

func isEventDecrypt(e types.Envelope) bool {
	return e.DepsIncludedAndValid && e.KeyRef != nil && e.EventPlaintext == nil
}

func isEventEncrypt(e types.Envelope) bool {
	// Key events authenticate by sealing rather than by a prior
	// validated=true (they skip Signature and Validate gates it on
	// sig_checked, which only this stage can set for them), so they are
	// eligible to encrypt immediately; every other event type waits
	// until it has been validated and stored. Local-only events never
	// have a key_ref and are never prepared for transit.
	if e.LocalOnly || e.KeyRef == nil || e.EventPlaintext == nil || e.EventCiphertext != nil {
		return false
	}
	return e.Validated || e.EventType == "key"
}

func eventDecrypt(d *Deps, e types.Envelope) ([]types.Envelope, error) {
	var plaintext []byte
	var err error

	switch e.KeyRef.Kind {
	case types.KeyRefKindPeer:
		plaintext, err = unsealPeer(d, e)
	case types.KeyRefKindKey:
		plaintext, err = unsealGroupKey(d, e)
	default:
		return nil, fmt.Errorf("%w: unknown key_ref kind %q", types.ErrMalformedEnvelope, e.KeyRef.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFailed, err)
	}

	var body map[string]any
	if err := json.Unmarshal(plaintext, &body); err != nil {
		return nil, fmt.Errorf("%w: decode plaintext: %v", types.ErrMalformedEnvelope, err)
	}

	out := e
	out.EventPlaintext = body
	if out.EventType == "" {
		if t, ok := body["event_type"].(string); ok {
			out.EventType = t
		}
	}
	if out.EventType == "key" {
		// A key-distribution event authenticates itself by virtue of
		// decrypting successfully, whether it was sealed to an
		// individual peer (first distribution) or under an existing
		// group secret (rotation) — it is never separately signed
		// (spec.md §4.3 "key events are sealed, never signed"). It
		// still passes through Validate to reach storage/unblock.
		out.SigChecked = true
	}
	return []types.Envelope{out}, nil
}

func unsealPeer(d *Deps, e types.Envelope) ([]byte, error) {
	ref := (types.DepRef{Kind: "identity", ID: e.KeyRef.ID}).String()
	dep, ok := e.ResolvedDeps[ref]
	if !ok || dep.PrivateKey == nil {
		return nil, fmt.Errorf("%w: unresolved identity %s", types.ErrMissingDeps, e.KeyRef.ID)
	}
	sk, found, err := d.Secrets.GetSigningKey(e.KeyRef.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no local kx keypair for %s", types.ErrMissingDeps, e.KeyRef.ID)
	}
	return d.Crypto.OpenFromPeer(sk.KXPublicKey, sk.KXPrivateKey, e.EventCiphertext)
}

func unsealGroupKey(d *Deps, e types.Envelope) ([]byte, error) {
	ref := (types.DepRef{Kind: "key", ID: e.KeyRef.ID}).String()
	dep, hasDep := e.ResolvedDeps[ref]
	var secret []byte
	if hasDep && dep.Secret != nil {
		secret = dep.Secret
	} else {
		ek, found, err := d.Secrets.GetEventKey(e.KeyRef.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: unresolved event key %s", types.ErrMissingDeps, e.KeyRef.ID)
		}
		secret = ek.Secret
	}
	return d.Crypto.OpenSymmetric(secret, e.EventCiphertext)
}

func eventEncrypt(d *Deps, e types.Envelope) ([]types.Envelope, error) {
	plaintext, err := json.Marshal(e.EventPlaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: encode plaintext: %v", types.ErrMalformedEnvelope, err)
	}
	if e.KeyRef == nil {
		return nil, fmt.Errorf("%w: missing key_ref for encrypt", types.ErrMalformedEnvelope)
	}

	var ciphertext []byte
	switch e.KeyRef.Kind {
	case types.KeyRefKindPeer:
		ref := (types.DepRef{Kind: "identity", ID: e.KeyRef.ID}).String()
		dep, ok := e.ResolvedDeps[ref]
		if !ok {
			return nil, fmt.Errorf("%w: unresolved identity %s", types.ErrMissingDeps, e.KeyRef.ID)
		}
		kxPub, _ := dep.Plaintext["kx_public_key"].(string)
		if kxPub == "" {
			return nil, fmt.Errorf("%w: identity %s has no kx_public_key", types.ErrMalformedEnvelope, e.KeyRef.ID)
		}
		ciphertext, err = d.Crypto.SealToPeer([]byte(kxPub), plaintext)
	case types.KeyRefKindKey:
		ref := (types.DepRef{Kind: "key", ID: e.KeyRef.ID}).String()
		dep, ok := e.ResolvedDeps[ref]
		var secret []byte
		if ok && dep.Secret != nil {
			secret = dep.Secret
		} else {
			ek, found, gErr := d.Secrets.GetEventKey(e.KeyRef.ID)
			if gErr != nil {
				return nil, gErr
			}
			if !found {
				return nil, fmt.Errorf("%w: unresolved event key %s", types.ErrMissingDeps, e.KeyRef.ID)
			}
			secret = ek.Secret
		}
		ciphertext, err = d.Crypto.SealSymmetric(secret, plaintext)
	default:
		return nil, fmt.Errorf("%w: unknown key_ref kind %q", types.ErrMalformedEnvelope, e.KeyRef.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFailed, err)
	}

	out := e
	out.EventCiphertext = ciphertext
	if out.EventType == "key" {
		// Sealing is the only authentication a key event gets; the
		// Signature handler refuses this event_type outright, so this
		// stage also computes the event_id that handler would have.
		out.SigChecked = true
		if out.EventID == "" {
			canon, err := types.CanonicalPlaintext(e.EventPlaintext)
			if err != nil {
				return nil, err
			}
			id, err := d.Crypto.EventID(canon)
			if err != nil {
				return nil, fmt.Errorf("event_crypto: compute event id: %w", err)
			}
			out.EventID = id
		}
	}
	return []types.Envelope{out}, nil
}
