package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/ctxlog"
)

// ErrorMapping defines how an error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// KindMappings maps every domain error kind to its status.
// Storage failures are left out so they fall through to a logged 500.
var KindMappings = []ErrorMapping{
	{Error: domain.ErrNotFound, Status: http.StatusNotFound},
	{Error: domain.ErrConflict, Status: http.StatusConflict},
	{Error: domain.ErrUnauthorized, Status: http.StatusUnauthorized},
	{Error: domain.ErrForbidden, Status: http.StatusForbidden},
	{Error: domain.ErrValidation, Status: http.StatusBadRequest},
}

// HandleError writes the response for err. Specific mappings are tried first,
// then the domain kinds; anything unmatched is logged and answered with 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings ...ErrorMapping) {
	for _, list := range [][]ErrorMapping{mappings, KindMappings} {
		for _, m := range list {
			if errors.Is(err, m.Error) {
				msg := m.Message
				if msg == "" {
					msg = err.Error()
				}
				Error(w, m.Status, msg)
				return
			}
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
