package notes

import (
	"net/http"

	"github.com/bissquit/notes-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the notes module. All routes require authentication.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new notes handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers note routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Get("/{id}", h.GetNote)
		r.Put("/{id}", h.UpdateNote)
		r.Delete("/{id}", h.DeleteNote)
		r.Delete("/{id}/tags", h.ClearTags)
	})
	r.Get("/tags/{name}/notes", h.ListNotesByTag)
}

// CreateNoteRequest represents the request body for creating a note.
type CreateNoteRequest struct {
	Title    string   `json:"title" validate:"required"`
	Content  string   `json:"content" validate:"required"`
	MemoDate string   `json:"memo_date" validate:"required"`
	Tags     []string `json:"tags"`
}

// UpdateNoteRequest represents the request body for updating a note.
// Omitted fields are left unchanged; "tags": [] removes all tags.
type UpdateNoteRequest struct {
	Title    *string  `json:"title" validate:"omitempty,min=1"`
	Content  *string  `json:"content" validate:"omitempty,min=1"`
	MemoDate *string  `json:"memo_date"`
	Tags     []string `json:"tags"`
}

// CreateNote handles POST /notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	note, err := h.service.CreateNote(r.Context(), httputil.GetUserID(r.Context()), CreateNoteInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, note)
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.service.GetNote(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, note)
}

// UpdateNote handles PUT /notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	note, err := h.service.UpdateNote(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"), UpdateNoteInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteNote(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.NoContent(w)
}

// ClearTags handles DELETE /notes/{id}/tags.
func (h *Handler) ClearTags(w http.ResponseWriter, r *http.Request) {
	note, err := h.service.ClearTags(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, note)
}

// ListNotes handles GET /notes?limit=&cursor=.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	input, err := listInput(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	page, err := h.service.ListNotes(r.Context(), httputil.GetUserID(r.Context()), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

// ListNotesByTag handles GET /tags/{name}/notes?limit=&cursor=.
func (h *Handler) ListNotesByTag(w http.ResponseWriter, r *http.Request) {
	input, err := listInput(r)
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	page, err := h.service.ListNotesByTag(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "name"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

func listInput(r *http.Request) (ListInput, error) {
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		return ListInput{}, err
	}
	return ListInput{Limit: limit, Cursor: r.URL.Query().Get("cursor")}, nil
}
