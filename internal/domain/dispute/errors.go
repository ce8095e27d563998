package dispute

import "errors"

// Sentinel kinds for dispute workflow errors.
var (
	ErrMalformed = errors.New("malformed dispute")
	ErrNotFound  = errors.New("dispute not found")
	ErrConflict  = errors.New("dispute already finalized")
)
