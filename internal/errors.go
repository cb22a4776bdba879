package internal

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("payment gateway not configured")
	ErrSignatureMismatch = errors.New("invalid signature")
	ErrValidationFailed  = errors.New("validation failed")
	ErrValidationCall    = errors.New("validation error")
	ErrBadRequest        = errors.New("bad request")
	ErrNotFound          = errors.New("not found")
)

// UpstreamError is a failed call to the commerce backend.
// Detail is the backend's own message when one could be extracted.
type UpstreamError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
