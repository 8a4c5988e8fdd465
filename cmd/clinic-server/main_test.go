package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicdash/clinic/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		Env:               "test",
		LogLevel:          "error",
		Store:             config.StoreMemory,
		CORSOrigins:       []string{"http://localhost:3000"},
		RateLimitRPS:      1000,
		RateLimitBurst:    1000,
		BodyLimit:         "1M",
		RequestTimeout:    5 * time.Second,
		SessionSecret:     "test-session-secret-0123456789abcdef",
		SessionTTL:        time.Hour,
		SessionCookie:     "clinic_session",
		AdminEmail:        "admin@clinica.com",
		AdminName:         "Dr. Admin",
		CalendarWeekStart: "sunday",
		CalendarFirstHour: 8,
		CalendarHours:     12,
	}
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	a, err := newApp(context.Background(), testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.close)
	e, err := a.newServer()
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return e
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("expected status ok, got %s", rec.Body.String())
	}

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from memory health, got %d", rec.Code)
	}
}

func TestServer_RequiresSession(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestServer_LoginFlow(t *testing.T) {
	e := newTestServer(t)

	body := `{"email":"admin@clinica.com","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if rec := serve(e, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	body = `{"email":"admin@clinica.com","password":"` + demoPassword + `"}`
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := serve(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.AddCookie(cookies[0])
	rec = serve(e, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with session, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/webhooks", nil)
	req.AddCookie(cookies[0])
	if rec = serve(e, req); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from webhook listing, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookies[0])
	rec = serve(e, req)
	if !strings.Contains(rec.Body.String(), "admin@clinica.com") {
		t.Errorf("expected admin principal, got %s", rec.Body.String())
	}
}

func TestServer_Metrics(t *testing.T) {
	e := newTestServer(t)
	serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_http_requests_total") {
		t.Error("expected clinic_http_requests_total in metrics output")
	}
}

func TestServer_OpenAPI(t *testing.T) {
	e := newTestServer(t)

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without a session, got %d", rec.Code)
	}
	for _, p := range []string{"/api/v1/patients/{id}", "/api/v1/reports/{id}", "/auth/login"} {
		if !strings.Contains(rec.Body.String(), p) {
			t.Errorf("expected %s in the document", p)
		}
	}
}

func TestHashPasswordCommand(t *testing.T) {
	cmd := hashPasswordCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"s3cret"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("expected printed hash to verify, got %v", err)
	}
}

func TestCheckSeedTarget(t *testing.T) {
	cfg := testConfig()
	if err := checkSeedTarget(cfg); err == nil || !strings.Contains(err.Error(), "STORE=postgres") {
		t.Errorf("expected memory store to be rejected, got %v", err)
	}

	cfg.Store = config.StorePostgres
	if err := checkSeedTarget(cfg); err != nil {
		t.Errorf("expected postgres store to be accepted, got %v", err)
	}

	cfg.Env = "production"
	if err := checkSeedTarget(cfg); err == nil || !strings.Contains(err.Error(), "production") {
		t.Errorf("expected production to be rejected, got %v", err)
	}
}
