// Package postgres provides PostgreSQL implementation of identity repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/identity"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
	"github.com/bissquit/notes-garden/internal/pkg/postgres"
	"github.com/jackc/pgx/v5"
)

const emailConstraint = "users_email_key"

const userColumns = `id, name, email, password_hash, memo, role, created_at, updated_at`

// Repository implements identity.Repository on a single transaction.
type Repository struct {
	tx pgx.Tx
}

// NewRepository creates a repository bound to tx.
func NewRepository(tx pgx.Tx) *Repository {
	return &Repository{tx: tx}
}

// Save inserts a new user.
func (r *Repository) Save(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.tx.Exec(ctx, query,
		user.ID,
		user.Profile.Name,
		user.Profile.Email,
		user.Password,
		user.Memo,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, emailConstraint) {
			return identity.ErrEmailExists
		}
		return postgres.Translate("create user", err)
	}
	return nil
}

// GetPage returns users newest first, strictly after the cursor when one is given.
func (r *Repository) GetPage(ctx context.Context, limit int, after *cursor.Cursor) ([]*domain.User, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	args := []any{}

	if after != nil {
		query += ` WHERE (created_at, id) < ($1::timestamptz, $2::uuid)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, false, postgres.Translate("list users", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0, limit+1)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, false, postgres.Translate("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, false, postgres.Translate("iterate users", err)
	}

	hasMore := len(users) > limit
	if hasMore {
		users = users[:limit]
	}
	return users, hasMore, nil
}

// FindByEmail returns the user with the given email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "get user by email", `email = $1`, email)
}

// FindByID returns the user with the given id.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, "get user", `id = $1::uuid`, id)
}

func (r *Repository) findOne(ctx context.Context, op, where string, arg any) (*domain.User, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, postgres.Translate(op, err)
	}
	return user, nil
}

// Update sets only the changed columns plus updated_at and returns the stored user.
func (r *Repository) Update(ctx context.Context, id string, changes domain.UserChanges, now time.Time) (*domain.User, error) {
	sets := []string{"updated_at = $1"}
	args := []any{now}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.Name != nil {
		add("name", *changes.Name)
	}
	if changes.Password != nil {
		add("password_hash", *changes.Password)
	}
	if changes.Memo != nil {
		add("memo", *changes.Memo)
	}
	if changes.Role != nil {
		add("role", *changes.Role)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d::uuid RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)

	user, err := scanUser(r.tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, postgres.Translate("update user", err)
	}
	return user, nil
}

// Delete removes the user.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM users WHERE id = $1::uuid`, id)
	if err != nil {
		return false, postgres.Translate("delete user", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Profile.Name,
		&u.Profile.Email,
		&u.Password,
		&u.Memo,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
