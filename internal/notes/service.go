package notes

import (
	"context"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/clock"
	"github.com/bissquit/notes-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
	"github.com/bissquit/notes-garden/internal/pkg/uow"
	"github.com/google/uuid"
)

// Config holds note limits and page size bounds.
type Config struct {
	Limits          domain.NoteLimits
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Limits:          domain.DefaultNoteLimits(),
		DefaultPageSize: 10,
		MaxPageSize:     100,
	}
}

// Service implements note business logic. Every method runs in its own unit of work.
type Service struct {
	opener uow.Opener[Repository]
	clock  clock.Clock
	cfg    Config
}

// NewService creates a new note service.
func NewService(opener uow.Opener[Repository], clk clock.Clock, cfg Config) *Service {
	return &Service{
		opener: opener,
		clock:  clk,
		cfg:    cfg,
	}
}

// CreateNoteInput holds data for creating a note.
type CreateNoteInput struct {
	Title    string
	Content  string
	MemoDate string
	Tags     []string
}

// UpdateNoteInput holds a partial note update. Nil fields are left unchanged;
// a non-nil empty Tags removes every tag.
type UpdateNoteInput struct {
	Title    *string
	Content  *string
	MemoDate *string
	Tags     []string
}

func (in UpdateNoteInput) isEmpty() bool {
	return in.Title == nil && in.Content == nil && in.MemoDate == nil && in.Tags == nil
}

// ListInput selects a page. A nil Limit means the configured default.
type ListInput struct {
	Limit  *int
	Cursor string
}

// CreateNote creates a note owned by userID.
func (s *Service) CreateNote(ctx context.Context, userID string, input CreateNoteInput) (*domain.Note, error) {
	now := s.clock.Now()

	tags, err := s.buildTags(input.Tags)
	if err != nil {
		return nil, err
	}

	note, err := domain.NewNote(uuid.NewString(), userID, input.Title, input.Content, input.MemoDate, tags, now, s.cfg.Limits)
	if err != nil {
		return nil, err
	}

	var saved *domain.Note
	err = uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		var err error
		saved, err = repo.Save(ctx, userID, note)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Debug("note created", "note_id", saved.ID, "tags", len(saved.Tags))
	return saved, nil
}

// GetNote returns the user's note.
func (s *Service) GetNote(ctx context.Context, userID, id string) (*domain.Note, error) {
	if !domain.IsID(id) {
		return nil, ErrNoteNotFound
	}

	var note *domain.Note
	err := uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		var err error
		note, err = repo.FindByID(ctx, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNote applies the supplied fields to the user's note. updated_at always advances.
func (s *Service) UpdateNote(ctx context.Context, userID, id string, input UpdateNoteInput) (*domain.Note, error) {
	if !domain.IsID(id) {
		return nil, ErrNoteNotFound
	}

	var tags []domain.Tag
	if input.Tags != nil {
		var err error
		if tags, err = s.buildTags(input.Tags); err != nil {
			return nil, err
		}
	}

	var saved *domain.Note
	err := uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		note, err := repo.FindByID(ctx, userID, id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if input.Title != nil {
			if err := note.ChangeTitle(*input.Title, now, s.cfg.Limits); err != nil {
				return err
			}
		}
		if input.Content != nil {
			if err := note.ChangeContent(*input.Content, now, s.cfg.Limits); err != nil {
				return err
			}
		}
		if input.MemoDate != nil {
			if err := note.ChangeMemoDate(*input.MemoDate, now, s.cfg.Limits); err != nil {
				return err
			}
		}
		if input.Tags != nil {
			if err := note.ChangeTags(tags, now, s.cfg.Limits); err != nil {
				return err
			}
		}
		if input.isEmpty() {
			note.Touch(now)
		}

		saved, err = repo.Save(ctx, userID, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ClearTags removes every tag from the user's note. The tags themselves are kept.
func (s *Service) ClearTags(ctx context.Context, userID, id string) (*domain.Note, error) {
	if !domain.IsID(id) {
		return nil, ErrNoteNotFound
	}

	var saved *domain.Note
	err := uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		note, err := repo.FindByID(ctx, userID, id)
		if err != nil {
			return err
		}

		note.RemoveAllTags(s.clock.Now())
		saved, err = repo.Save(ctx, userID, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteNote deletes the user's note.
func (s *Service) DeleteNote(ctx context.Context, userID, id string) error {
	if !domain.IsID(id) {
		return ErrNoteNotFound
	}

	return uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		note, err := repo.FindByID(ctx, userID, id)
		if err != nil {
			return err
		}

		deleted, err := repo.Delete(ctx, note)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrNoteNotFound
		}
		return nil
	})
}

// ListNotes returns a page of the user's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, userID string, input ListInput) (*domain.Page[*domain.Note], error) {
	return s.list(ctx, input, func(ctx context.Context, repo Repository, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
		return repo.ListByOwner(ctx, userID, limit, after)
	})
}

// ListNotesByTag returns a page of the user's notes carrying the tag, newest first.
func (s *Service) ListNotesByTag(ctx context.Context, userID, tagName string, input ListInput) (*domain.Page[*domain.Note], error) {
	names, err := domain.NormalizeTagNames([]string{tagName}, s.cfg.Limits)
	if err != nil {
		return nil, err
	}

	return s.list(ctx, input, func(ctx context.Context, repo Repository, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
		return repo.ListByTag(ctx, userID, names[0], limit, after)
	})
}

type listFunc func(ctx context.Context, repo Repository, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error)

func (s *Service) list(ctx context.Context, input ListInput, fetch listFunc) (*domain.Page[*domain.Note], error) {
	limit, err := s.pageSize(input.Limit)
	if err != nil {
		return nil, err
	}

	after, err := parseCursor(input.Cursor)
	if err != nil {
		return nil, err
	}

	var items []*domain.Note
	var hasMore bool
	err = uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		var err error
		items, hasMore, err = fetch(ctx, repo, limit, after)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &domain.Page[*domain.Note]{Items: items, HasMore: hasMore}
	if page.Items == nil {
		page.Items = []*domain.Note{}
	}
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		page.NextCursor = cursor.Encode(last.CreatedAt, last.ID)
	}
	return page, nil
}

func (s *Service) pageSize(limit *int) (int, error) {
	if limit == nil {
		return s.cfg.DefaultPageSize, nil
	}
	if *limit < 1 || *limit > s.cfg.MaxPageSize {
		return 0, ErrInvalidLimit
	}
	return *limit, nil
}

// buildTags turns names into tags without ids; the repository resolves them.
func (s *Service) buildTags(names []string) ([]domain.Tag, error) {
	normalized, err := domain.NormalizeTagNames(names, s.cfg.Limits)
	if err != nil {
		return nil, err
	}

	tags := make([]domain.Tag, 0, len(normalized))
	for _, name := range normalized {
		tags = append(tags, domain.Tag{Name: name})
	}
	return tags, nil
}

func parseCursor(s string) (*cursor.Cursor, error) {
	after, err := cursor.Parse(s)
	if err != nil {
		return nil, err
	}
	if after != nil && !domain.IsID(after.ID) {
		return nil, ErrInvalidCursor
	}
	return after, nil
}
