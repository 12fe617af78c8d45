package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate_Nil(t *testing.T) {
	assert.NoError(t, Translate("op", nil))
}

func TestTranslate_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}

	err := Translate("insert user", fmt.Errorf("exec: %w", pgErr))

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "users_email_key")

	var target *pgconn.PgError
	assert.False(t, errors.As(err, &target), "driver error must not escape")
}

func TestTranslate_OtherErrorsAreStorageFailures(t *testing.T) {
	err := Translate("select notes", &pgconn.PgError{Code: "42P01"})
	assert.ErrorIs(t, err, domain.ErrStorage)

	err = Translate("select notes", errors.New("conn closed"))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Contains(t, err.Error(), "conn closed")
}

func TestTranslate_KeepsClassifiedErrors(t *testing.T) {
	notFound := fmt.Errorf("note not found: %w", domain.ErrNotFound)

	err := Translate("load note", notFound)

	assert.ErrorIs(t, err, notFound)
	assert.NotErrorIs(t, err, domain.ErrStorage)
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "tags_name_key"}

	assert.True(t, IsUniqueViolation(pgErr, ""))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", pgErr), "tags_name_key"))
	assert.False(t, IsUniqueViolation(pgErr, "users_email_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestCalcBackoff(t *testing.T) {
	assert.Equal(t, "1s", calcBackoff(1).String())
	assert.Equal(t, "4s", calcBackoff(3).String())
	assert.Equal(t, "16s", calcBackoff(10).String())
}
