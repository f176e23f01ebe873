package handlers

import (
	"database/sql"
	"fmt"

	"github.com/quietmesh/core/pkg/crypto"
	"github.com/quietmesh/core/pkg/dispatcher"
	"github.com/quietmesh/core/pkg/types"
)

// TransitCrypto builds the handler that authenticates and strips (or
// applies) the hop-by-hop transit layer (spec.md §4.3 "Transit
// crypto"). Decrypt and encrypt are two filters on one handler, as the
// spec names them as a single conceptual stage.
func TransitCrypto(d *Deps) dispatcher.Handler {
	return dispatcher.Handler{
		Name: "03_transit_crypto",
		Filter: func(e types.Envelope) bool {
			return isTransitDecrypt(e) || isTransitEncrypt(e)
		},
		Process: func(e types.Envelope, tx *sql.Tx) ([]types.Envelope, error) {
			if isTransitDecrypt(e) {
				return transitDecrypt(d, e)
			}
			return transitEncrypt(d, e)
		},
	}
}

func isTransitDecrypt(e types.Envelope) bool {
	return e.DepsIncludedAndValid && e.TransitKeyID != nil && e.TransitCiphertext != nil && e.KeyRef == nil
}

func isTransitEncrypt(e types.Envelope) bool {
	return e.OutgoingChecked && e.EventCiphertext != nil && e.TransitKeyID != nil && e.TransitCiphertext == nil
}

func transitDecrypt(d *Deps, e types.Envelope) ([]types.Envelope, error) {
	secret, err := transitSecretFor(e)
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.UnwrapTransit(d.Crypto, secret, e.TransitCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFailed, err)
	}
	payload, err := decodeEventLayer(wrapped)
	if err != nil {
		return nil, err
	}

	out := e
	out.TransitKeyID = nil
	out.TransitCiphertext = nil
	keyRef := payload.KeyRef
	out.KeyRef = &keyRef
	out.EventCiphertext = payload.EventCiphertext
	out.EventID = payload.EventID
	out.NetworkID = payload.NetworkID
	return []types.Envelope{out}, nil
}

func transitEncrypt(d *Deps, e types.Envelope) ([]types.Envelope, error) {
	secret, err := transitSecretFor(e)
	if err != nil {
		return nil, err
	}
	var keyRef types.KeyRef
	if e.KeyRef != nil {
		keyRef = *e.KeyRef
	}
	payload, err := encodeEventLayer(eventLayerPayload{
		KeyRef:          keyRef,
		EventCiphertext: e.EventCiphertext,
		EventID:         e.EventID,
		NetworkID:       e.NetworkID,
	})
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.WrapTransit(d.Crypto, secret, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCryptoFailed, err)
	}

	out := e
	out.TransitCiphertext = wrapped
	out.Outgoing = true
	return []types.Envelope{out}, nil
}

func transitSecretFor(e types.Envelope) ([]byte, error) {
	if e.TransitKeyID == nil {
		return nil, fmt.Errorf("%w: missing transit_key_id", types.ErrMalformedEnvelope)
	}
	ref := (types.DepRef{Kind: "transit_key", ID: e.TransitKeyID.ID}).String()
	dep, ok := e.ResolvedDeps[ref]
	if !ok || dep.Secret == nil {
		return nil, fmt.Errorf("%w: unresolved transit key %s", types.ErrMissingDeps, e.TransitKeyID.ID)
	}
	return dep.Secret, nil
}
