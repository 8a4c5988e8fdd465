package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
)

var seedNow = time.Date(2024, 12, 15, 10, 0, 0, 0, time.UTC)

func newTestSeeder() (*Seeder, *clinic.Service) {
	store := clinic.NewMemoryStore()
	svc := clinic.NewService(store.Patients(), store.Services(), store.Reservations(), zerolog.Nop())
	svc.SetClock(func() time.Time { return seedNow })
	return NewSeeder(svc, calendar.New(calendar.DefaultConfig()), zerolog.Nop()), svc
}

func TestDataGenerator_GeneratePatient(t *testing.T) {
	gen := NewDataGenerator(42)
	for i := 0; i < 50; i++ {
		p := gen.GeneratePatient()
		if p.Name == nil || *p.Name == "" {
			t.Fatal("expected a name")
		}
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			t.Errorf("expected valid email, got %q: %v", *p.Email, err)
		}
		if strings.ContainsAny(*p.Email, "áéíóúñ") {
			t.Errorf("expected ascii email, got %q", *p.Email)
		}
		if *p.Age < 18 || *p.Age > 80 {
			t.Errorf("expected age in 18..80, got %d", *p.Age)
		}
	}
}

func TestDataGenerator_Deterministic(t *testing.T) {
	a, b := NewDataGenerator(7), NewDataGenerator(7)
	for i := 0; i < 10; i++ {
		pa, pb := a.GeneratePatient(), b.GeneratePatient()
		if *pa.Name != *pb.Name || *pa.Phone != *pb.Phone {
			t.Fatalf("expected identical patients for the same seed, got %q and %q", *pa.Name, *pb.Name)
		}
	}
}

func TestDataGenerator_GenerateReservation(t *testing.T) {
	gen := NewDataGenerator(3)
	cal := calendar.New(calendar.DefaultConfig())
	pid, sid := uuid.New(), uuid.New()
	today := calendar.Day(seedNow)

	for i := 0; i < 200; i++ {
		in := gen.GenerateReservation(pid, sid, seedNow, 10, 5, cal)
		date, err := calendar.ParseDate(*in.Date)
		if err != nil {
			t.Fatalf("unexpected date %q: %v", *in.Date, err)
		}
		if date.Before(today.AddDate(0, 0, -10)) || date.After(today.AddDate(0, 0, 5)) {
			t.Errorf("date %s outside window", *in.Date)
		}
		if h := calendar.ParseHour(*in.Time); h < 8 || h > 19 {
			t.Errorf("time %q outside calendar hours", *in.Time)
		}
		st := clinic.Status(*in.Status)
		if date.Before(today) && st != clinic.StatusCompleted && st != clinic.StatusCancelled {
			t.Errorf("expected past reservation completed or cancelled, got %s", st)
		}
		if !date.Before(today) && st == clinic.StatusCompleted {
			t.Errorf("expected no completed reservation on %s", *in.Date)
		}
	}
}

func TestSeeder_Seed(t *testing.T) {
	seeder, svc := newTestSeeder()
	ctx := context.Background()

	result, err := seeder.Seed(ctx, SeedConfig{PatientCount: 5, ReservationsPerPatient: 2, Seed: 9})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if result.Services != len(demoServices) || result.Patients != 5 || result.Reservations != 10 {
		t.Errorf("unexpected result %+v", result)
	}

	snap, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Patients) != 5 || len(snap.Services) != len(demoServices) || len(snap.Reservations) != 10 {
		t.Errorf("expected stored counts 5/%d/10, got %d/%d/%d",
			len(demoServices), len(snap.Patients), len(snap.Services), len(snap.Reservations))
	}
}

func TestSeeder_Defaults(t *testing.T) {
	cfg := SeedConfig{ReservationsPerPatient: -1}.withDefaults()
	if cfg.PatientCount != DefaultSeedConfig().PatientCount {
		t.Errorf("expected default patient count, got %d", cfg.PatientCount)
	}
	if cfg.ReservationsPerPatient != 0 {
		t.Errorf("expected negative reservations clamped to 0, got %d", cfg.ReservationsPerPatient)
	}
	if cfg.DaysBack+cfg.DaysAhead == 0 {
		t.Error("expected a non-empty date window")
	}
}

type failingWriter struct{ *clinic.Service }

func (failingWriter) CreatePatient(context.Context, clinic.PatientInput) (*clinic.Patient, error) {
	return nil, errors.New("store down")
}

func TestSeeder_PropagatesErrors(t *testing.T) {
	_, svc := newTestSeeder()
	seeder := NewSeeder(failingWriter{svc}, calendar.New(calendar.DefaultConfig()), zerolog.Nop())

	result, err := seeder.Seed(context.Background(), DefaultSeedConfig())
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if result.Services != len(demoServices) || result.Patients != 0 {
		t.Errorf("expected partial result with services only, got %+v", result)
	}
}

func TestSeedHandler(t *testing.T) {
	seeder, _ := newTestSeeder()
	h := NewSeedHandler(seeder)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(`{"patient_count":3,"reservations_per_patient":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.handleSeed(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var result SeedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Patients != 3 || result.Reservations != 3 {
		t.Errorf("unexpected result %+v", result)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sandbox/seed", strings.NewReader(`{"patient_count":5000}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.handleSeed(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized seed, got %v", err)
	}
}
