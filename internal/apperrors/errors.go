package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services and handlers. Handlers map these to
// HTTP statuses; services never encode status codes themselves.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// ConflictError reports a uniqueness violation and names the field that
// collided so clients know which value to change.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' is already taken", e.Field, e.Value)
}

// NewConflict creates a ConflictError for the given field/value pair.
func NewConflict(field, value string) *ConflictError {
	return &ConflictError{Field: field, Value: value}
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
