package domain

import "errors"

// Error kinds. Every error leaving a service wraps exactly one of these,
// so callers classify with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrValidation   = errors.New("validation failed")
	ErrStorage      = errors.New("storage failure")
)

// Error is a named error of a given kind.
type Error struct {
	kind error
	msg  string
}

// NewError creates an error that reads as msg and matches kind with errors.Is.
func NewError(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Unwrap returns the error kind.
func (e *Error) Unwrap() error {
	return e.kind
}
