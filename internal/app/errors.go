package service

import "errors"

// Sentinel kinds for controller errors.
var (
	ErrNoAuthority = errors.New("no authority client configured")
	ErrStopped     = errors.New("monitor stopped")
)
