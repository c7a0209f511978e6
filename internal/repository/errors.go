package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument indicates input rejected by validation or by a storage constraint.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)

// FieldError is a storage rejection attributed to a single field. It matches
// ErrInvalidArgument with errors.Is.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidArgument
}
