package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator checks an email and password pair.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Principal, error)
}

// StaticAuthenticator accepts a single configured principal whose password
// is stored as a bcrypt hash.
type StaticAuthenticator struct {
	principal    Principal
	passwordHash []byte
}

func NewStaticAuthenticator(p Principal, passwordHash string) (*StaticAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, err
	}
	if p.Role == "" {
		p.Role = "admin"
	}
	return &StaticAuthenticator{principal: p, passwordHash: []byte(passwordHash)}, nil
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, email, password string) (*Principal, error) {
	if !strings.EqualFold(strings.TrimSpace(email), a.principal.Email) {
		// Spend the same time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	p := a.principal
	return &p, nil
}

// HashPassword returns the bcrypt hash used by ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
