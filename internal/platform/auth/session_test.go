package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func TestNewSessionManager_ShortSecret(t *testing.T) {
	if _, err := NewSessionManager(SessionConfig{Secret: []byte("short")}); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestSessionManager_RoundTrip(t *testing.T) {
	sm := newTestSessions(t)
	in := &Principal{ID: "1", Email: "admin@clinica.com", Name: "Dr. Admin", Role: "admin"}
	token, exp, err := sm.Issue(in)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expected expiry in the future, got %v", exp)
	}
	out, err := sm.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *out != *in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestSessionManager_Expired(t *testing.T) {
	sm := newTestSessions(t)
	sm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, _ := sm.Issue(&Principal{ID: "1"})
	sm.now = time.Now

	if _, err := sm.Parse(token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessionManager_Cookies(t *testing.T) {
	sm := newTestSessions(t)
	ck := sm.Cookie("tok", time.Now().Add(time.Hour))
	if ck.Name != "sid" || !ck.HttpOnly || ck.Value != "tok" {
		t.Errorf("unexpected cookie %+v", ck)
	}
	if sm.ExpiredCookie().MaxAge >= 0 {
		t.Error("expected expired cookie to have negative MaxAge")
	}
}

func newTestAuthenticator(t *testing.T) *StaticAuthenticator {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a, err := NewStaticAuthenticator(Principal{ID: "1", Email: "admin@clinica.com", Name: "Dr. Admin"}, string(hash))
	if err != nil {
		t.Fatalf("NewStaticAuthenticator: %v", err)
	}
	return a
}

func TestStaticAuthenticator(t *testing.T) {
	a := newTestAuthenticator(t)
	ctx := context.Background()

	p, err := a.Authenticate(ctx, "Admin@Clinica.com", "admin123")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if p.Role != "admin" {
		t.Errorf("expected default admin role, got %q", p.Role)
	}
	if _, err := a.Authenticate(ctx, "admin@clinica.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.Authenticate(ctx, "other@clinica.com", "admin123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNewStaticAuthenticator_RejectsPlainPassword(t *testing.T) {
	if _, err := NewStaticAuthenticator(Principal{Email: "a@b.co"}, "admin123"); err == nil {
		t.Fatal("expected error for non-bcrypt hash")
	}
}

func TestHandler_Login(t *testing.T) {
	h := NewHandler(newTestSessions(t), newTestAuthenticator(t), zerolog.Nop())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"admin@clinica.com","password":"admin123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "sid=") {
		t.Errorf("expected session cookie, got %q", rec.Header().Get("Set-Cookie"))
	}
	if !strings.Contains(rec.Body.String(), `"name":"Dr. Admin"`) {
		t.Errorf("expected principal in body, got %s", rec.Body.String())
	}
}

func TestHandler_Login_BadPassword(t *testing.T) {
	h := NewHandler(newTestSessions(t), newTestAuthenticator(t), zerolog.Nop())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"admin@clinica.com","password":"nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Login(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h := NewHandler(newTestSessions(t), newTestAuthenticator(t), zerolog.Nop())
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err, ok := h.Me(c).(*echo.HTTPError); !ok || err.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without principal, got %v", err)
	}

	req = req.WithContext(WithPrincipal(req.Context(), &Principal{ID: "1", Role: "admin"}))
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
