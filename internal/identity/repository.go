package identity

import (
	"context"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
)

// Repository defines user storage bound to one unit of work.
type Repository interface {
	Save(ctx context.Context, user *domain.User) error
	// GetPage returns users newest first with the same keyset rules as notes.
	GetPage(ctx context.Context, limit int, after *cursor.Cursor) ([]*domain.User, bool, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Update applies only the set fields of changes and always moves updated_at to now.
	Update(ctx context.Context, id string, changes domain.UserChanges, now time.Time) (*domain.User, error)
	Delete(ctx context.Context, id string) (bool, error)
}
