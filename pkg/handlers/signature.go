package handlers

import (
	"database/sql"
	"fmt"

	"github.com/quietmesh/core/pkg/types"

	"github.com/quietmesh/core/pkg/dispatcher"
)

// Signature builds the handler that signs self-created events and
// verifies signatures on inbound ones (spec.md §4.3 "Signature"). Key
// events are sealed, never signed: both directions reject event_type
// "key".
func Signature(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "05_signature",
		Filter: func(e types.Envelope) bool {
			if e.EventType == "key" {
				return false
			}
			return isSignVerify(e) || isSignSign(e)
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			if isSignSign(e) {
				return signEvent(d, e)
			}
			return verifyEvent(d, e)
		},
	}
}

func isSignVerify(e types.Envelope) bool {
	return e.EventPlaintext != nil && !e.SigChecked && e.DepsIncludedAndValid
}

func isSignSign(e types.Envelope) bool {
	return e.SelfCreated && e.Signature == nil
}

func signEvent(d *Deps, e types.Envelope) ([]types.Envelope, error) {
	privateKey, err := signingPrivateKeyFor(d, e)
	if err != nil {
		return nil, err
	}

	canon, err := types.CanonicalPlaintext(e.EventPlaintext)
	if err != nil {
		return nil, err
	}
	sig, err := d.Crypto.Sign(privateKey, canon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFailed, err)
	}
	id, err := d.Crypto.EventID(canon)
	if err != nil {
		return nil, fmt.Errorf("sign: compute event id: %w", err)
	}

	out := e
	out.Signature = sig
	out.EventID = id
	// A locally signed event is trusted without a verify round-trip;
	// verification exists to check OTHER peers' signatures, and a
	// self-created event (e.g. a fresh identity) generally has no
	// already-stored "peer" dependency on itself to verify against.
	out.SigChecked = true
	return []types.Envelope{out}, nil
}

// signingPrivateKeyFor prefers a resolved identity dependency (an
// identity event that has already been validated/stored) and falls
// back to the local secret store directly, which is what lets a
// freshly generated, not-yet-stored identity sign its own creation
// event (spec.md §4.2 step 2's "self-created path").
func signingPrivateKeyFor(d *Deps, e types.Envelope) ([]byte, error) {
	identityRef := (types.DepRef{Kind: "identity", ID: e.PeerID}).String()
	if dep, ok := e.ResolvedDeps[identityRef]; ok && dep.PrivateKey != nil {
		return dep.PrivateKey, nil
	}
	sk, found, err := d.Secrets.GetSigningKey(e.PeerID)
	if err != nil {
		return nil, fmt.Errorf("signing key lookup: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: unresolved signing identity %s", types.ErrMissingDeps, e.PeerID)
	}
	return sk.PrivateKey, nil
}

func verifyEvent(d *Deps, e types.Envelope) ([]types.Envelope, error) {
	signerRef := (types.DepRef{Kind: "peer", ID: e.PeerID}).String()
	dep, ok := e.ResolvedDeps[signerRef]
	var publicKey []byte
	if ok {
		if pk, found := dep.Plaintext["sign_public_key"].(string); found {
			publicKey = []byte(pk)
		}
	}
	if publicKey == nil {
		return nil, fmt.Errorf("%w: unresolved signer public key for peer %s", types.ErrMissingDeps, e.PeerID)
	}

	canon, err := types.CanonicalPlaintext(e.EventPlaintext)
	if err != nil {
		return nil, err
	}
	if err := d.Crypto.Verify(publicKey, canon, e.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFailed, err)
	}
	id, err := d.Crypto.EventID(canon)
	if err != nil {
		return nil, fmt.Errorf("verify: compute event id: %w", err)
	}
	if e.EventID != "" && e.EventID != id {
		return nil, fmt.Errorf("%w: event_id mismatch", types.ErrCryptoFailed)
	}

	out := e
	out.EventID = id
	out.SigChecked = true
	return []types.Envelope{out}, nil
}
