package types

import "errors"

// Error kinds named in spec.md §7. Handlers and the dispatcher wrap one
// of these with context via fmt.Errorf("...: %w", ...) so callers can
// distinguish recoverable parks from fatal drops with errors.Is.
var (
	// ErrMissingDeps: recoverable; the envelope has been parked.
	ErrMissingDeps = errors.New("missing dependency")

	// ErrValidationFailed: the event was purged; the envelope is dropped
	// but the id remains dedup-visible.
	ErrValidationFailed = errors.New("validation failed")

	// ErrCryptoFailed: MAC or signature check failed; envelope dropped
	// silently, event never stored.
	ErrCryptoFailed = errors.New("crypto verification failed")

	// ErrMembershipFailed: claimed group membership did not match
	// projected state.
	ErrMembershipFailed = errors.New("membership check failed")

	// ErrRetryCapExceeded: fatal drop after 100 re-emissions.
	ErrRetryCapExceeded = errors.New("retry cap exceeded")

	// ErrMalformedEnvelope: schema violation; fatal drop on that
	// envelope only.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrTransientIO: the transaction rolled back; caller may retry.
	ErrTransientIO = errors.New("transient i/o failure")
)
