package dispatch

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrInFlight      = errors.New("intervention already in flight for event")
	ErrInvalidAction = errors.New("invalid intervention action")
	ErrInvalidTarget = errors.New("invalid intervention target")
)
