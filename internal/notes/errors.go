package notes

import "github.com/bissquit/notes-garden/internal/domain"

// Service errors.
var (
	ErrNoteNotFound     = domain.NewError(domain.ErrNotFound, "note not found")
	ErrNoteOwnedByOther = domain.NewError(domain.ErrConflict, "note id belongs to another owner")
	ErrTagConflict      = domain.NewError(domain.ErrConflict, "tag was created concurrently, retry the request")
	ErrInvalidCursor    = domain.NewError(domain.ErrValidation, "invalid cursor")
	ErrInvalidLimit     = domain.NewError(domain.ErrValidation, "invalid page size")
)
