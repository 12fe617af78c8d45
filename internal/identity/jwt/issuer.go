// Package jwt issues and verifies HS256 session tokens.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/notes-garden/internal/domain"
	"github.com/bissquit/notes-garden/internal/pkg/clock"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret is returned by NewIssuer for an empty signing key.
var ErrNoSecret = errors.New("jwt secret key is empty")

type claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens carrying subject, email, role and expiry.
// Tokens are stateless: expiry is the only way they stop being valid.
type Issuer struct {
	secret []byte
	clock  clock.Clock
	parser *jwt.Parser
}

// NewIssuer creates an issuer signing with secret.
func NewIssuer(secret string, clk clock.Clock) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Issuer{
		secret: []byte(secret),
		clock:  clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

// Issue returns a signed token that expires ttl from now.
func (i *Issuer) Issue(subject, email string, role domain.Role, ttl time.Duration) (string, error) {
	now := i.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry. A bad or expired token is domain.ErrUnauthorized;
// a valid token without subject or role is domain.ErrForbidden.
func (i *Issuer) Verify(token string) (*domain.Claims, error) {
	var c claims
	_, err := i.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	if c.Subject == "" || !c.Role.IsValid() {
		return nil, fmt.Errorf("%w: token lacks subject or role", domain.ErrForbidden)
	}

	return &domain.Claims{
		Subject:   c.Subject,
		Email:     c.Email,
		Role:      c.Role,
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}, nil
}
