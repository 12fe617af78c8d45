// Package cursor encodes the opaque keyset pagination cursor "<RFC3339 created_at>_<id>".
package cursor

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
)

// Cursor identifies the last item of a page by its sort key.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode formats a cursor for the given row key.
func Encode(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "_" + id
}

// Decode parses a cursor produced by Encode. Existence of the referenced row is not checked.
func Decode(s string) (Cursor, error) {
	// RFC 3339 timestamps never contain '_', so the first one is the separator.
	ts, id, ok := strings.Cut(s, "_")
	if !ok {
		return Cursor{}, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: invalid cursor timestamp", domain.ErrValidation)
	}
	if id == "" {
		return Cursor{}, fmt.Errorf("%w: cursor id is empty", domain.ErrValidation)
	}

	return Cursor{CreatedAt: createdAt.UTC(), ID: id}, nil
}

// Parse is Decode for optional cursors: the empty string means the first page.
func Parse(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	c, err := Decode(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// String returns the encoded form.
func (c Cursor) String() string {
	return Encode(c.CreatedAt, c.ID)
}
