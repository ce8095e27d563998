package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrUnavailable = errors.New("stats not yet available")
)

// NewKind tags a sentinel error with the operation it occurred in.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags a sentinel error with the operation and underlying cause.
func WrapKind(op string, kind error, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %v", op, kind, err)
}
