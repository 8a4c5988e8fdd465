package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "clinic-dashboard"

// Principal is the authenticated user of a session.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Claims carries the principal inside the session token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (c *Claims) Principal() *Principal {
	return &Principal{ID: c.Subject, Email: c.Email, Name: c.Name, Role: c.Role}
}

// SessionConfig configures the session cookie.
type SessionConfig struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// SessionManager issues and verifies HS256 session tokens carried in a cookie.
type SessionManager struct {
	cfg SessionConfig
	now func() time.Time
}

func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("session secret must be at least 16 bytes")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "clinic_session"
	}
	return &SessionManager{cfg: cfg, now: time.Now}, nil
}

func (m *SessionManager) CookieName() string { return m.cfg.CookieName }

// Issue signs a token for p and returns it with its expiry.
func (m *SessionManager) Issue(p *Principal) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, exp, nil
}

var ErrInvalidSession = errors.New("invalid session")

// Parse verifies a session token and returns its principal.
func (m *SessionManager) Parse(token string) (*Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return claims.Principal(), nil
}

// Cookie builds the session cookie for token.
func (m *SessionManager) Cookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredCookie clears the session cookie.
func (m *SessionManager) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
