package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveWithHeaders(t *testing.T, cfg SecurityHeadersConfig, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), rec)
	if err := SecurityHeaders(cfg)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestSecurityHeaders_APIDefaults(t *testing.T) {
	rec := serveWithHeaders(t, SecurityHeadersConfig{}, "/api/v1/patients")

	expected := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": apiCSP,
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("header %s: expected %q, got %q", header, want, got)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS without TLS, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	rec := serveWithHeaders(t, SecurityHeadersConfig{HSTS: true}, "/api/v1/patients")
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("expected HSTS header, got %q", got)
	}
}

func TestSecurityHeaders_DocsPolicy(t *testing.T) {
	cfg := SecurityHeadersConfig{DocsPrefixes: []string{"/docs"}}

	if got := serveWithHeaders(t, cfg, "/docs").Header().Get("Content-Security-Policy"); got != docsCSP {
		t.Errorf("expected docs CSP, got %q", got)
	}
	if got := serveWithHeaders(t, cfg, "/api/v1/services").Header().Get("Content-Security-Policy"); got != apiCSP {
		t.Errorf("expected API CSP outside docs, got %q", got)
	}
}
