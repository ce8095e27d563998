package buffer

import "errors"

// Sentinel kinds for buffer errors.
var (
	ErrMalformed = errors.New("malformed event")
)
