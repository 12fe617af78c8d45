package notes

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
	"github.com/bissquit/notes-garden/internal/pkg/uow"
	"github.com/google/uuid"
)

// memStore keeps committed notes and tags. Each unit of work gets a private copy
// that replaces the committed state on commit.
type memStore struct {
	mu    sync.Mutex
	notes map[string]domain.Note
	tags  map[string]domain.Tag // by name

	commits   int
	rollbacks int
	// failSave makes the next Save return this error after writing.
	failSave error
}

func newMemStore() *memStore {
	return &memStore{
		notes: make(map[string]domain.Note),
		tags:  make(map[string]domain.Tag),
	}
}

func (s *memStore) Open(_ context.Context) (uow.Session, Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := &memRepo{store: s, notes: make(map[string]domain.Note, len(s.notes)), tags: make(map[string]domain.Tag, len(s.tags))}
	for k, v := range s.notes {
		v.Tags = append([]domain.Tag(nil), v.Tags...)
		repo.notes[k] = v
	}
	for k, v := range s.tags {
		repo.tags[k] = v
	}
	return &memSession{repo: repo}, repo, nil
}

func (s *memStore) noteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *memStore) tagCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tags)
}

type memSession struct {
	repo *memRepo
}

func (m *memSession) Commit(_ context.Context) error {
	s := m.repo.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = m.repo.notes
	s.tags = m.repo.tags
	s.commits++
	return nil
}

func (m *memSession) Rollback(_ context.Context) error {
	s := m.repo.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks++
	return nil
}

func (m *memSession) Release() {}

type memRepo struct {
	store *memStore
	notes map[string]domain.Note
	tags  map[string]domain.Tag
}

func (r *memRepo) ListByOwner(_ context.Context, userID string, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
	return r.page(limit, after, func(n domain.Note) bool { return n.UserID == userID })
}

func (r *memRepo) ListByTag(_ context.Context, userID, tagName string, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
	return r.page(limit, after, func(n domain.Note) bool {
		if n.UserID != userID {
			return false
		}
		for _, t := range n.Tags {
			if t.Name == tagName {
				return true
			}
		}
		return false
	})
}

func (r *memRepo) page(limit int, after *cursor.Cursor, match func(domain.Note) bool) ([]*domain.Note, bool, error) {
	var all []*domain.Note
	for _, n := range r.notes {
		if !match(n) {
			continue
		}
		if after != nil && !less(n, after) {
			continue
		}
		n := n
		all = append(all, &n)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if len(all) > limit {
		return all[:limit], true, nil
	}
	return all, false, nil
}

func less(n domain.Note, c *cursor.Cursor) bool {
	if n.CreatedAt.Equal(c.CreatedAt) {
		return n.ID < c.ID
	}
	return n.CreatedAt.Before(c.CreatedAt)
}

func (r *memRepo) FindByID(_ context.Context, userID, id string) (*domain.Note, error) {
	n, ok := r.notes[id]
	if !ok || n.UserID != userID {
		return nil, ErrNoteNotFound
	}
	n.Tags = append([]domain.Tag{}, n.Tags...)
	return &n, nil
}

func (r *memRepo) Save(_ context.Context, userID string, note *domain.Note) (*domain.Note, error) {
	if existing, ok := r.notes[note.ID]; ok && existing.UserID != userID {
		return nil, ErrNoteOwnedByOther
	}

	saved := *note
	saved.UserID = userID
	saved.Tags = make([]domain.Tag, 0, len(note.Tags))
	for _, t := range note.Tags {
		tag, ok := r.tags[t.Name]
		if !ok {
			tag = domain.Tag{ID: uuid.NewString(), Name: t.Name, CreatedAt: note.UpdatedAt, UpdatedAt: note.UpdatedAt}
			r.tags[t.Name] = tag
		}
		saved.Tags = append(saved.Tags, tag)
	}
	r.notes[note.ID] = saved

	if err := r.store.failSave; err != nil {
		r.store.failSave = nil
		return nil, err
	}

	out := saved
	return &out, nil
}

func (r *memRepo) Delete(_ context.Context, note *domain.Note) (bool, error) {
	if _, ok := r.notes[note.ID]; !ok {
		return false, nil
	}
	delete(r.notes, note.ID)
	return true, nil
}

var errForced = errors.New("forced failure")
