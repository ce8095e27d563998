package stats

import "errors"

// Sentinel kinds for aggregator errors.
var (
	ErrStale     = errors.New("stale snapshot")
	ErrMalformed = errors.New("malformed snapshot")
)
