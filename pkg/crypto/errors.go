package crypto

import "errors"

// ErrBadKeySize is returned when a caller supplies a key or secret of
// the wrong length; it always indicates a programming error upstream
// (a malformed local secret row), never an adversarial input, so
// handlers should treat it as fatal rather than parking the envelope.
var ErrBadKeySize = errors.New("crypto: bad key size")

// ErrCryptoFailed is re-exported here (distinct identity from
// types.ErrCryptoFailed) so this package has no dependency on pkg/types;
// callers in pkg/handlers wrap whichever of the two is convenient into
// types.ErrCryptoFailed when surfacing it on an envelope.
var ErrCryptoFailed = errors.New("crypto: verification failed")
