package identity

import (
	"net/http"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the identity module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new identity handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers routes open to anonymous callers.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/users", h.CreateUser)
}

// RegisterProtectedRoutes registers routes that require authentication.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Get("/users/{id}", h.GetUser)
	r.Patch("/users/me", h.UpdateMe)
}

// RegisterAdminRoutes registers routes that require the admin role.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/users", h.ListUsers)
	r.Delete("/users/{id}", h.DeleteUser)
}

// CreateUserRequest represents the registration request body.
type CreateUserRequest struct {
	Name     string  `json:"name" validate:"required,max=32"`
	Email    string  `json:"email" validate:"required,email,max=64"`
	Password string  `json:"password" validate:"required,min=8,max=64"`
	Memo     *string `json:"memo"`
}

// UpdateUserRequest represents the request body for updating the current user.
type UpdateUserRequest struct {
	CurrentPassword string       `json:"current_password" validate:"required"`
	Name            *string      `json:"name" validate:"omitempty,min=1,max=32"`
	NewPassword     *string      `json:"new_password" validate:"omitempty,min=8,max=64"`
	Memo            *string      `json:"memo"`
	Role            *domain.Role `json:"role" validate:"omitempty,oneof=user admin"`
}

// LoginRequest represents login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var loginErrors = []httputil.ErrorMapping{
	{Error: ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
}

// CreateUser handles POST /users. New accounts always get the user role.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Memo:     req.Memo,
		Role:     domain.RoleUser,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, user)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput(req))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, loginErrors...)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// GetUser handles GET /users/{id}. Users may read themselves; admins may read anyone.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "me" {
		id = httputil.GetUserID(r.Context())
	}
	if id != httputil.GetUserID(r.Context()) && !httputil.GetRole(r.Context()).HasPermission(domain.RoleAdmin) {
		httputil.Error(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /users/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(),
		httputil.GetUserID(r.Context()),
		httputil.GetRole(r.Context()),
		UpdateUserInput(req),
	)
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, user)
}

// ListUsers handles GET /users?limit=&cursor=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit")
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	page, err := h.service.ListUsers(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.Success(w, http.StatusOK, page)
}

// DeleteUser handles DELETE /users/{id}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err)
		return
	}

	httputil.NoContent(w)
}
