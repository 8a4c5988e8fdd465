package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdash/clinic/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_PatientRead(t *testing.T) {
	rec := &mockRecorder{}
	pid := uuid.NewString()
	c, _ := newTestContext(http.MethodGet, "/api/v1/patients/"+pid, withAuth("1", []string{"admin"}))
	c.Set("request_id", "req-1")

	if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.last()
	if got.UserID != "1" || got.Action != "read" || got.Resource != "patients" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.PatientID != pid || got.ResourceID != pid {
		t.Errorf("expected patient %s, got %q / %q", pid, got.PatientID, got.ResourceID)
	}
	if got.RequestID != "req-1" || got.StatusCode != http.StatusOK {
		t.Errorf("expected request id and status 200, got %q %d", got.RequestID, got.StatusCode)
	}
}

func TestAudit_ReservationReschedule(t *testing.T) {
	rec := &mockRecorder{}
	id := uuid.NewString()
	c, _ := newTestContext(http.MethodPatch, "/api/v1/reservations/"+id+"/reschedule")

	_ = Audit(zerolog.Nop(), rec)(okHandler)(c)

	got := rec.last()
	if got.Action != "update" || got.Resource != "reservations" || got.ResourceID != id {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.PatientID != "" {
		t.Errorf("expected no patient id, got %q", got.PatientID)
	}
}

func TestAudit_PatientIDFromQuery(t *testing.T) {
	rec := &mockRecorder{}
	pid := uuid.NewString()
	c, _ := newTestContext(http.MethodGet, "/api/v1/reservations?patient_id="+pid)

	_ = Audit(zerolog.Nop(), rec)(okHandler)(c)

	if got := rec.last().PatientID; got != pid {
		t.Errorf("expected %s, got %q", pid, got)
	}
}

func TestAudit_ErrorStatus(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodDelete, "/api/v1/services/"+uuid.NewString())

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "in use")
	}
	if err := Audit(zerolog.Nop(), rec)(handler)(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if got := rec.last(); got.StatusCode != http.StatusConflict || got.Action != "delete" {
		t.Errorf("expected delete with 409, got %+v", got)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	for _, p := range []string{"/health", "/auth/login", "/metrics"} {
		c, _ := newTestContext(http.MethodGet, p)
		_ = Audit(zerolog.Nop(), rec)(okHandler)(c)
	}
	if rec.count() != 0 {
		t.Errorf("expected no entries, got %d", rec.count())
	}
}

func TestAudit_RecorderErrorDoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("boom")}
	c, res := newTestContext(http.MethodGet, "/api/v1/patients")

	if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", res.Code)
	}
}

func TestAudit_NilRecorderSkipped(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/v1/patients")
	if err := Audit(zerolog.Nop(), nil)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("%s: expected %s, got %s", method, want, got)
		}
	}
}

func TestSplitResource(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/patients", "patients", ""},
		{"/api/v1/patients/" + id, "patients", id},
		{"/api/v1/reservations/" + id + "/reschedule", "reservations", id},
		{"/api/v1/calendar/month", "calendar", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		r, gotID := splitResource(tt.path)
		if r != tt.resource || gotID != tt.id {
			t.Errorf("%s: expected (%s, %q), got (%s, %q)", tt.path, tt.resource, tt.id, r, gotID)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var called bool
	f := AuditRecorderFunc(func(AuditEntry) error {
		called = true
		return nil
	})
	_ = f.RecordAccess(AuditEntry{})
	if !called {
		t.Error("expected func to be called")
	}
}
