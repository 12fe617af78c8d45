package notes

import (
	"context"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
)

// Repository defines note storage bound to one unit of work.
//
// List methods return at most limit notes ordered by (created_at, id) descending,
// starting strictly after the cursor when one is given, and report whether more rows follow.
type Repository interface {
	ListByOwner(ctx context.Context, userID string, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error)
	ListByTag(ctx context.Context, userID, tagName string, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error)
	FindByID(ctx context.Context, userID, id string) (*domain.Note, error)

	// Save inserts the note or updates its mutable fields, resolves its tags by name
	// and replaces the note's tag associations with the resolved set.
	Save(ctx context.Context, userID string, note *domain.Note) (*domain.Note, error)
	Delete(ctx context.Context, note *domain.Note) (bool, error)
}
