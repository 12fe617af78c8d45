package identity

import "github.com/bissquit/notes-garden/internal/domain"

// Service errors.
var (
	ErrUserNotFound       = domain.NewError(domain.ErrNotFound, "user not found")
	ErrEmailExists        = domain.NewError(domain.ErrConflict, "email already exists")
	ErrInvalidCredentials = domain.NewError(domain.ErrUnauthorized, "invalid email or password")
	ErrInvalidPassword    = domain.NewError(domain.ErrUnauthorized, "invalid password")
	ErrInvalidCursor      = domain.NewError(domain.ErrValidation, "invalid cursor")
	ErrInvalidLimit       = domain.NewError(domain.ErrValidation, "invalid page size")
)
