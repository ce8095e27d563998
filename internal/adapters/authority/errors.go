package authority

import "errors"

// Sentinel kinds for authority call failures.
var (
	// ErrUnavailable covers network errors, timeouts and 5xx responses.
	// Callers keep last-known-good state and treat this as recoverable.
	ErrUnavailable = errors.New("authority unavailable")

	// ErrRejected carries an explicit refusal from the authority. The
	// verbatim reason is wrapped; no local state change is assumed.
	ErrRejected = errors.New("authority rejected request")
)
