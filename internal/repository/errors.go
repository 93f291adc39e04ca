package repository

import "errors"

// Error kinds shared by the stores and the service layer. Specific errors
// wrap one of these so callers can branch on the kind alone.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrInvalid     = errors.New("invalid")
	ErrUnavailable = errors.New("unavailable")
)
