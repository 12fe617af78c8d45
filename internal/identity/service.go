// Package identity manages users, credentials and session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/clock"
	"github.com/bissquit/notes-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notes-garden/internal/pkg/cursor"
	"github.com/bissquit/notes-garden/internal/pkg/uow"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, encoded string) bool
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(subject, email string, role domain.Role, ttl time.Duration) (string, error)
	Verify(token string) (*domain.Claims, error)
}

// UserCreatedHandler is called after a user is created.
type UserCreatedHandler interface {
	OnUserCreated(ctx context.Context, user *domain.User) error
}

// Config holds identity settings.
type Config struct {
	AccessTokenDuration time.Duration
	DefaultPageSize     int
	MaxPageSize         int
}

// Service implements identity business logic.
type Service struct {
	opener             uow.Opener[Repository]
	hasher             PasswordHasher
	tokens             TokenIssuer
	clock              clock.Clock
	cfg                Config
	validate           *validator.Validate
	userCreatedHandler UserCreatedHandler
}

// NewService creates a new identity service. userCreatedHandler may be nil.
func NewService(
	opener uow.Opener[Repository],
	hasher PasswordHasher,
	tokens TokenIssuer,
	clk clock.Clock,
	cfg Config,
	userCreatedHandler UserCreatedHandler,
) *Service {
	return &Service{
		opener:             opener,
		hasher:             hasher,
		tokens:             tokens,
		clock:              clk,
		cfg:                cfg,
		validate:           validator.New(),
		userCreatedHandler: userCreatedHandler,
	}
}

// CreateUserInput holds data for creating a user.
type CreateUserInput struct {
	Name     string      `validate:"required,max=32"`
	Email    string      `validate:"required,email,max=64"`
	Password string      `validate:"required,min=8,max=64"`
	Memo     *string     `validate:"omitempty"`
	Role     domain.Role `validate:"omitempty,oneof=user admin"`
}

// UpdateUserInput holds a partial user update. CurrentPassword must match.
type UpdateUserInput struct {
	CurrentPassword string       `validate:"required"`
	Name            *string      `validate:"omitempty,min=1,max=32"`
	NewPassword     *string      `validate:"omitempty,min=8,max=64"`
	Memo            *string      `validate:"omitempty"`
	Role            *domain.Role `validate:"omitempty,oneof=user admin"`
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// LoginResult is a successful login.
type LoginResult struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// CreateUser registers a user. The password is hashed before any transaction opens.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if input.Role == "" {
		input.Role = domain.RoleUser
	}

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:        uuid.NewString(),
		Profile:   domain.Profile{Name: input.Name, Email: input.Email},
		Password:  hash,
		Memo:      input.Memo,
		Role:      input.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		existing, err := repo.FindByEmail(ctx, user.Profile.Email)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
		if existing != nil {
			return ErrEmailExists
		}
		return repo.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	if s.userCreatedHandler != nil {
		if err := s.userCreatedHandler.OnUserCreated(ctx, user); err != nil {
			ctxlog.FromContext(ctx).Warn("user created handler failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	return user, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if !domain.IsID(id) {
		return nil, ErrUserNotFound
	}

	var user *domain.User
	err := uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		var err error
		user, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser applies the supplied fields to the user after checking the current password.
// Only admins may change a role.
func (s *Service) UpdateUser(ctx context.Context, id string, actorRole domain.Role, input UpdateUserInput) (*domain.User, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if input.Role != nil && !actorRole.HasPermission(domain.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins can change roles", domain.ErrForbidden)
	}

	if !domain.IsID(id) {
		return nil, ErrUserNotFound
	}

	changes := domain.UserChanges{
		Name: input.Name,
		Memo: input.Memo,
		Role: input.Role,
	}
	if input.NewPassword != nil {
		hash, err := s.hasher.Hash(ctx, *input.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		changes.Password = &hash
	}

	var updated *domain.User
	err := uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !s.hasher.Verify(ctx, input.CurrentPassword, current.Password) {
			return ErrInvalidPassword
		}

		updated, err = repo.Update(ctx, id, changes, s.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteUser deletes a user. The user's notes are not removed.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if !domain.IsID(id) {
		return ErrUserNotFound
	}

	return uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrUserNotFound
		}
		return nil
	})
}

// ListUsers returns a page of users, newest first. A nil limit means the configured default.
func (s *Service) ListUsers(ctx context.Context, limitParam *int, rawCursor string) (*domain.Page[*domain.User], error) {
	limit := s.cfg.DefaultPageSize
	if limitParam != nil {
		limit = *limitParam
		if limit < 1 || limit > s.cfg.MaxPageSize {
			return nil, ErrInvalidLimit
		}
	}

	after, err := cursor.Parse(rawCursor)
	if err != nil {
		return nil, err
	}
	if after != nil && !domain.IsID(after.ID) {
		return nil, ErrInvalidCursor
	}

	var users []*domain.User
	var hasMore bool
	err = uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		var err error
		users, hasMore, err = repo.GetPage(ctx, limit, after)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &domain.Page[*domain.User]{Items: users, HasMore: hasMore}
	if page.Items == nil {
		page.Items = []*domain.User{}
	}
	if hasMore && len(users) > 0 {
		last := users[len(users)-1]
		page.NextCursor = cursor.Encode(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Login checks credentials and issues an access token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	input.Email = normalizeEmail(input.Email)
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	var user *domain.User
	err := uow.Run(ctx, s.opener, func(ctx context.Context, repo Repository) error {
		var err error
		user, err = repo.FindByEmail(ctx, input.Email)
		return err
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(ctx, input.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Profile.Email, user.Role, s.cfg.AccessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	return &LoginResult{
		User:        user,
		AccessToken: token,
		ExpiresAt:   s.clock.Now().Add(s.cfg.AccessTokenDuration),
	}, nil
}

// ValidateToken verifies an access token for the auth middleware.
func (s *Service) ValidateToken(_ context.Context, token string) (string, domain.Role, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Role, nil
}

// normalizeEmail trims surrounding whitespace. Case is kept: emails are unique as stored.
func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
