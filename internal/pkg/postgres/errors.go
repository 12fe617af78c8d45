package postgres

import (
	"errors"
	"fmt"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

const codeUniqueViolation = "23505"

// Translate classifies a pgx error into the domain error kinds.
// Unique violations become domain.ErrConflict, anything else domain.ErrStorage.
// The driver error is kept as text only so it cannot be matched by callers.
// Errors that already carry a domain kind are wrapped unchanged.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}

	if isClassified(err) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, pgErr.ConstraintName)
	}

	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorage, err)
}

// IsUniqueViolation reports whether err is a unique violation, optionally on a specific constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isClassified(err error) bool {
	for _, kind := range []error{
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrUnauthorized,
		domain.ErrForbidden,
		domain.ErrValidation,
		domain.ErrStorage,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
