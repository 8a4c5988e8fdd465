package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/platform/auth"
	"github.com/clinicdash/clinic/internal/platform/middleware"
)

func newTestHandler() (*Handler, *Service) {
	svc, _ := newTestService()
	return NewHandler(svc), svc
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreatePatient(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	body := `{"name":"Ana Pérez","phone":"1155550000","email":"ana@example.com","age":41}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Name != "Ana Pérez" {
		t.Errorf("expected name Ana Pérez, got %q", p.Name)
	}
}

func TestHandler_CreatePatient_ValidationError(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	body := `{"name":"Ana","phone":"1155550000","email":"ana@example.com","age":200}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)

	err := h.CreatePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", httpErr.Code)
	}
	msg, ok := httpErr.Message.(map[string]string)
	if !ok || msg["field"] != "age" {
		t.Errorf("expected field age in body, got %v", httpErr.Message)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("00000000-0000-0000-0000-000000000001")

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_GetPatient_InvalidID(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_DeletePatient_Conflict(t *testing.T) {
	h, svc := newTestHandler()
	p, s := seedPair(t, svc)
	if _, err := svc.CreateReservation(context.Background(), reservationFor(p, s, "2024-12-28", "10:00")); err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.DeletePatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_ListReservations_Filter(t *testing.T) {
	h, svc := newTestHandler()
	p, s := seedPair(t, svc)
	ctx := context.Background()
	in := reservationFor(p, s, "2024-12-28", "10:00")
	in.Origin = strPtr("WHATSAPP")
	_, _ = svc.CreateReservation(ctx, in)
	_, _ = svc.CreateReservation(ctx, reservationFor(p, s, "2024-12-29", "10:00"))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?origin=whatsapp", nil), rec)

	if err := h.ListReservations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []map[string]interface{} `json:"data"`
		Total int                      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 WHATSAPP reservation, got %d", resp.Total)
	}
	if len(resp.Data) == 1 && resp.Data[0]["date"] != "2024-12-28" {
		t.Errorf("expected date 2024-12-28, got %v", resp.Data[0]["date"])
	}
}

func TestHandler_ListReservations_BadFilter(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=yesterday", nil), rec)

	err := h.ListReservations(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RescheduleReservation(t *testing.T) {
	h, svc := newTestHandler()
	p, s := seedPair(t, svc)
	r, _ := svc.CreateReservation(context.Background(), reservationFor(p, s, "2024-12-28", "10:00"))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPatch, "/", `{"date":"2025-01-05"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(r.ID.String())

	if err := h.RescheduleReservation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"date":"2025-01-05"`) {
		t.Errorf("expected new date in body, got %s", rec.Body.String())
	}
}

func TestCalendarHandler_Month(t *testing.T) {
	svc, _ := newTestService()
	p, s := seedPair(t, svc)
	_, _ = svc.CreateReservation(context.Background(), reservationFor(p, s, "2024-12-05", "09:30"))
	h := NewCalendarHandler(svc, calendar.New(calendar.DefaultConfig()))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2024-12-15", nil), rec)

	if err := h.Month(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view struct {
		Label string `json:"label"`
		Days  []struct {
			Key   string          `json:"key"`
			Items []CalendarEntry `json:"items"`
		} `json:"days"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Days) != 42 {
		t.Fatalf("expected 42 days, got %d", len(view.Days))
	}
	if view.Label != "Diciembre de 2024" {
		t.Errorf("expected Spanish label, got %q", view.Label)
	}
	if len(view.Days[4].Items) != 1 || view.Days[4].Items[0].PatientName != "María García" {
		t.Errorf("expected reservation on Dec 5, got %+v", view.Days[4])
	}
}

func TestCalendarHandler_Navigate(t *testing.T) {
	svc, _ := newTestService()
	h := NewCalendarHandler(svc, calendar.New(calendar.DefaultConfig()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?date=2024-01-31&granularity=month&direction=next", nil)
	req.Header.Set("Accept-Language", "en-US")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Navigate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp navigateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Date != "2024-02-29" {
		t.Errorf("expected 2024-02-29, got %s", resp.Date)
	}
	if resp.Label != "February 2024" {
		t.Errorf("expected February 2024, got %s", resp.Label)
	}
}

func TestCalendarHandler_Navigate_BadGranularity(t *testing.T) {
	svc, _ := newTestService()
	h := NewCalendarHandler(svc, calendar.New(calendar.DefaultConfig()))

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?granularity=day", nil), rec)

	err := h.Navigate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

// stalledPatients blocks every lookup until the request context ends.
type stalledPatients struct {
	PatientRepository
}

func (stalledPatients) GetByID(ctx context.Context, _ uuid.UUID) (*Patient, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHandler_GetPatient_RequestTimeout(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(stalledPatients{store.Patients()}, store.Services(), store.Reservations(), zerolog.Nop())
	h := NewHandler(svc)

	e := echo.New()
	e.GET("/patients/:id", h.GetPatient, middleware.RequestTimeout(20*time.Millisecond))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/patients/"+uuid.NewString(), nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHTTPError_InternalKeepsCause(t *testing.T) {
	cause := errors.New("pq: relation \"patients\" does not exist")
	err := HTTPError(fmt.Errorf("list patients: %w", cause))

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if httpErr.Message != "internal error" {
		t.Errorf("expected generic message, got %v", httpErr.Message)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
}

func TestHandler_RegisterRoutes_Roles(t *testing.T) {
	h, _ := newTestHandler()
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if role := c.Request().Header.Get("X-Role"); role != "" {
				ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, []string{role})
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	body := `{"name":"Ana Pérez","phone":"1155550000","email":"ana@example.com","age":41}`
	tests := []struct {
		role   string
		method string
		body   string
		want   int
	}{
		{"staff", http.MethodGet, "", http.StatusOK},
		{"staff", http.MethodPost, body, http.StatusCreated},
		{"admin", http.MethodPost, body, http.StatusCreated},
		{"viewer", http.MethodGet, "", http.StatusForbidden},
		{"viewer", http.MethodPost, body, http.StatusForbidden},
		{"", http.MethodGet, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := jsonRequest(tt.method, "/api/v1/patients", tt.body)
		if tt.role != "" {
			req.Header.Set("X-Role", tt.role)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s as %q: expected %d, got %d", tt.method, "/api/v1/patients", tt.role, tt.want, rec.Code)
		}
	}
}
