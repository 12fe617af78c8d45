// Package postgres provides PostgreSQL implementation of notes repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/notes"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
	"github.com/bissquit/notes-garden/internal/pkg/metrics"
	"github.com/bissquit/notes-garden/internal/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tagsNameConstraint = "tags_name_key"

var errTagRace = errors.New("tag inserted concurrently")

// Repository implements notes.Repository on a single transaction.
type Repository struct {
	tx pgx.Tx
}

// NewRepository creates a repository bound to tx.
func NewRepository(tx pgx.Tx) *Repository {
	return &Repository{tx: tx}
}

// ListByOwner returns a page of the user's notes, newest first.
func (r *Repository) ListByOwner(ctx context.Context, userID string, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
	return r.listPage(ctx, "n.user_id = $1", []any{userID}, limit, after)
}

// ListByTag returns a page of the user's notes carrying the named tag, newest first.
func (r *Repository) ListByTag(ctx context.Context, userID, tagName string, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
	where := `n.user_id = $1 AND EXISTS (
			SELECT 1 FROM note_tags nt
			JOIN tags t ON t.id = nt.tag_id
			WHERE nt.note_id = n.id AND t.name = $2
		)`
	return r.listPage(ctx, where, []any{userID, tagName}, limit, after)
}

func (r *Repository) listPage(ctx context.Context, where string, args []any, limit int, after *cursor.Cursor) ([]*domain.Note, bool, error) {
	query := `
		SELECT n.id, n.user_id, n.title, n.content, n.memo_date, n.created_at, n.updated_at
		FROM notes n
		WHERE ` + where
	argNum := len(args) + 1

	if after != nil {
		query += fmt.Sprintf(" AND (n.created_at, n.id) < ($%d::timestamptz, $%d::uuid)", argNum, argNum+1)
		args = append(args, after.CreatedAt, after.ID)
		argNum += 2
	}

	query += fmt.Sprintf(" ORDER BY n.created_at DESC, n.id DESC LIMIT $%d", argNum)
	args = append(args, limit+1)

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, postgres.Translate("list notes", err)
	}
	defer rows.Close()

	result := make([]*domain.Note, 0, limit+1)
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.MemoDate, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, false, postgres.Translate("scan note", err)
		}
		n.Tags = []domain.Tag{}
		result = append(result, normalize(&n))
	}
	if err := rows.Err(); err != nil {
		return nil, false, postgres.Translate("iterate notes", err)
	}

	hasMore := len(result) > limit
	if hasMore {
		result = result[:limit]
	}

	if err := r.loadTags(ctx, result); err != nil {
		return nil, false, err
	}
	return result, hasMore, nil
}

// FindByID returns the user's note with its tags.
func (r *Repository) FindByID(ctx context.Context, userID, id string) (*domain.Note, error) {
	query := `
		SELECT id, user_id, title, content, memo_date, created_at, updated_at
		FROM notes
		WHERE id = $1::uuid AND user_id = $2::uuid
	`
	var n domain.Note
	err := r.tx.QueryRow(ctx, query, id, userID).Scan(
		&n.ID, &n.UserID, &n.Title, &n.Content, &n.MemoDate, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notes.ErrNoteNotFound
		}
		return nil, postgres.Translate("get note", err)
	}

	n.Tags = []domain.Tag{}
	note := normalize(&n)
	if err := r.loadTags(ctx, []*domain.Note{note}); err != nil {
		return nil, err
	}
	return note, nil
}

// Save upserts the note row, then resolves its tags and replaces its associations.
// An id already held by another owner is a conflict.
func (r *Repository) Save(ctx context.Context, userID string, note *domain.Note) (*domain.Note, error) {
	query := `
		INSERT INTO notes (id, user_id, title, content, memo_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			memo_date = EXCLUDED.memo_date,
			updated_at = EXCLUDED.updated_at
		WHERE notes.user_id = EXCLUDED.user_id
		RETURNING created_at
	`
	var createdAt time.Time
	err := r.tx.QueryRow(ctx, query,
		note.ID,
		userID,
		note.Title,
		note.Content,
		note.MemoDate,
		note.CreatedAt,
		note.UpdatedAt,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notes.ErrNoteOwnedByOther
		}
		return nil, postgres.Translate("save note", err)
	}

	tags, err := r.resolveTags(ctx, note.TagNames(), note.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if _, err := r.tx.Exec(ctx, `DELETE FROM note_tags WHERE note_id = $1`, note.ID); err != nil {
		return nil, postgres.Translate("clear note tags", err)
	}
	for _, tag := range tags {
		if _, err := r.tx.Exec(ctx,
			`INSERT INTO note_tags (note_id, tag_id) VALUES ($1, $2)`, note.ID, tag.ID,
		); err != nil {
			return nil, postgres.Translate("link note tag", err)
		}
	}

	saved := *note
	saved.UserID = userID
	saved.CreatedAt = createdAt.UTC()
	saved.Tags = tags
	return &saved, nil
}

// Delete removes the note; its tag associations go with it. Tags themselves are kept.
func (r *Repository) Delete(ctx context.Context, note *domain.Note) (bool, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, note.ID, note.UserID)
	if err != nil {
		return false, postgres.Translate("delete note", err)
	}
	return tag.RowsAffected() > 0, nil
}

// resolveTags returns a tag for every name, creating the missing ones.
// A concurrent insert of the same name is retried once with a fresh lookup.
func (r *Repository) resolveTags(ctx context.Context, names []string, now time.Time) ([]domain.Tag, error) {
	if len(names) == 0 {
		return []domain.Tag{}, nil
	}

	tags, err := r.resolveTagsOnce(ctx, names, now)
	if errors.Is(err, errTagRace) {
		metrics.TagResolutionRetries.Inc()
		tags, err = r.resolveTagsOnce(ctx, names, now)
	}
	if errors.Is(err, errTagRace) {
		return nil, notes.ErrTagConflict
	}
	return tags, err
}

// resolveTagsOnce runs inside a savepoint so a unique violation leaves the outer transaction usable.
func (r *Repository) resolveTagsOnce(ctx context.Context, names []string, now time.Time) ([]domain.Tag, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return nil, postgres.Translate("begin savepoint", err)
	}
	defer func() { _ = sp.Rollback(ctx) }()

	existing, err := findTags(ctx, sp, names)
	if err != nil {
		return nil, err
	}

	tags := make([]domain.Tag, 0, len(names))
	for _, name := range names {
		if tag, ok := existing[name]; ok {
			tags = append(tags, tag)
			continue
		}

		tag := domain.Tag{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
		_, err := sp.Exec(ctx,
			`INSERT INTO tags (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			tag.ID, tag.Name, tag.CreatedAt, tag.UpdatedAt,
		)
		if err != nil {
			if postgres.IsUniqueViolation(err, tagsNameConstraint) {
				return nil, errTagRace
			}
			return nil, postgres.Translate("create tag", err)
		}
		tags = append(tags, tag)
	}

	if err := sp.Commit(ctx); err != nil {
		return nil, postgres.Translate("release savepoint", err)
	}
	return tags, nil
}

func findTags(ctx context.Context, q pgx.Tx, names []string) (map[string]domain.Tag, error) {
	rows, err := q.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM tags WHERE name = ANY($1::text[])`, names,
	)
	if err != nil {
		return nil, postgres.Translate("find tags", err)
	}
	defer rows.Close()

	result := make(map[string]domain.Tag, len(names))
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, postgres.Translate("scan tag", err)
		}
		result[t.Name] = utcTag(t)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Translate("iterate tags", err)
	}
	return result, nil
}

// loadTags fills Tags for all notes with one query, ordered by tag name.
func (r *Repository) loadTags(ctx context.Context, list []*domain.Note) error {
	if len(list) == 0 {
		return nil
	}

	ids := make([]string, 0, len(list))
	byID := make(map[string]*domain.Note, len(list))
	for _, n := range list {
		ids = append(ids, n.ID)
		byID[n.ID] = n
	}

	rows, err := r.tx.Query(ctx, `
		SELECT nt.note_id, t.id, t.name, t.created_at, t.updated_at
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id = ANY($1::text[]::uuid[])
		ORDER BY t.name
	`, ids)
	if err != nil {
		return postgres.Translate("load note tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID string
		var t domain.Tag
		if err := rows.Scan(&noteID, &t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return postgres.Translate("scan note tag", err)
		}
		if n, ok := byID[noteID]; ok {
			n.Tags = append(n.Tags, utcTag(t))
		}
	}
	if err := rows.Err(); err != nil {
		return postgres.Translate("iterate note tags", err)
	}
	return nil
}

// pgx returns timestamptz in the local zone.
func normalize(n *domain.Note) *domain.Note {
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return n
}

func utcTag(t domain.Tag) domain.Tag {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t
}
