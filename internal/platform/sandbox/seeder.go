// Package sandbox generates demo data for development and demo environments.
// Records are written through the clinic service so they pass the same
// validation as API writes. A fixed seed reproduces the same data set.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
	"github.com/clinicdash/clinic/internal/platform/auth"
)

// SeedConfig controls the volume and spread of generated data.
type SeedConfig struct {
	PatientCount           int   `json:"patient_count"`
	ReservationsPerPatient int   `json:"reservations_per_patient"`
	DaysBack               int   `json:"days_back"`
	DaysAhead              int   `json:"days_ahead"`
	Seed                   int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:           12,
		ReservationsPerPatient: 3,
		DaysBack:               120,
		DaysAhead:              30,
		Seed:                   1,
	}
}

func (c SeedConfig) withDefaults() SeedConfig {
	def := DefaultSeedConfig()
	if c.PatientCount <= 0 {
		c.PatientCount = def.PatientCount
	}
	if c.ReservationsPerPatient < 0 {
		c.ReservationsPerPatient = 0
	}
	if c.DaysBack < 0 {
		c.DaysBack = 0
	}
	if c.DaysAhead < 0 {
		c.DaysAhead = 0
	}
	if c.DaysBack+c.DaysAhead == 0 {
		c.DaysBack, c.DaysAhead = def.DaysBack, def.DaysAhead
	}
	return c
}

// SeedResult reports what a run created.
type SeedResult struct {
	Patients     int           `json:"patients"`
	Services     int           `json:"services"`
	Reservations int           `json:"reservations"`
	Duration     time.Duration `json:"duration_ns"`
}

type serviceDef struct {
	name, description, color string
	price                    float64
}

// demoServices is the catalog every seed starts with.
var demoServices = []serviceDef{
	{"Limpieza Dental", "Limpieza profunda y revisión general", "#10b981", 150},
	{"Ortodoncia", "Consulta y tratamiento ortodóntico", "#3b82f6", 800},
	{"Extracción", "Extracción de piezas dentales", "#ef4444", 200},
	{"Blanqueamiento", "Blanqueamiento dental en consultorio", "#f59e0b", 450},
	{"Consulta General", "Evaluación y diagnóstico inicial", "#8b5cf6", 100},
}

var (
	firstNames = []string{
		"María", "Carlos", "Lucía", "José", "Ana", "Luis", "Sofía", "Miguel",
		"Valentina", "Jorge", "Camila", "Andrés", "Gabriela", "Fernando", "Daniela", "Ricardo",
	}
	lastNames = []string{
		"González", "Mendoza", "Rodríguez", "Pérez", "Flores", "Vargas", "Rojas", "Gutiérrez",
		"Fernández", "Quispe", "Mamani", "Torres", "Romero", "Castro", "Suárez", "Vásquez",
	}
	observations = []string{
		"Paciente regular, historial de ortodoncia",
		"Alergia a la penicilina",
		"Sensibilidad dental en piezas inferiores",
		"Prefiere citas por la mañana",
	}
	notes = []string{
		"Paciente contactó por WhatsApp",
		"Traer radiografías previas",
		"Primera visita",
		"Control de seguimiento",
	}
)

// DataGenerator produces deterministic clinic inputs.
type DataGenerator struct {
	rng     *rand.Rand
	counter int
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.ReplaceAll(out, " ", ".")
}

// GeneratePatient returns a complete patient input.
func (g *DataGenerator) GeneratePatient() clinic.PatientInput {
	g.counter++
	name := g.pick(firstNames) + " " + g.pick(lastNames)
	phone := fmt.Sprintf("+591 7%07d", g.rng.Intn(10000000))
	email := fmt.Sprintf("%s%d@demo.clinic", slug(name), g.counter)
	age := 18 + g.rng.Intn(63)
	in := clinic.PatientInput{Name: &name, Phone: &phone, Email: &email, Age: &age}
	if g.rng.Intn(3) == 0 {
		obs := g.pick(observations)
		in.Observations = &obs
	}
	return in
}

// GenerateReservation returns a reservation for the given patient and
// service dated within [today-daysBack, today+daysAhead]. Past dates are
// mostly COMPLETED, future ones PENDING or CONFIRMED.
func (g *DataGenerator) GenerateReservation(patientID, serviceID uuid.UUID, today time.Time, daysBack, daysAhead int, cal *calendar.Calendar) clinic.ReservationInput {
	offset := g.rng.Intn(daysBack+daysAhead+1) - daysBack
	date := calendar.Day(today).AddDate(0, 0, offset)

	hours := cal.Hours()
	clock := fmt.Sprintf("%02d:%02d", hours[g.rng.Intn(len(hours))], 30*g.rng.Intn(2))

	var status clinic.Status
	roll := g.rng.Intn(100)
	switch {
	case offset < 0 && roll < 80:
		status = clinic.StatusCompleted
	case offset < 0:
		status = clinic.StatusCancelled
	case roll < 50:
		status = clinic.StatusConfirmed
	case roll < 90:
		status = clinic.StatusPending
	default:
		status = clinic.StatusCancelled
	}
	origin := clinic.OriginSystem
	if g.rng.Intn(10) < 3 {
		origin = clinic.OriginWhatsApp
	}

	pid, sid := patientID.String(), serviceID.String()
	ds := date.Format(calendar.DateLayout)
	st, org := string(status), string(origin)
	in := clinic.ReservationInput{PatientID: &pid, ServiceID: &sid, Date: &ds, Time: &clock, Status: &st, Origin: &org}
	if g.rng.Intn(4) == 0 {
		n := g.pick(notes)
		in.Notes = &n
	}
	return in
}

// Writer is the subset of the clinic service the seeder writes through.
type Writer interface {
	CreatePatient(ctx context.Context, in clinic.PatientInput) (*clinic.Patient, error)
	CreateService(ctx context.Context, in clinic.ServiceInput) (*clinic.MedicalService, error)
	CreateReservation(ctx context.Context, in clinic.ReservationInput) (*clinic.Reservation, error)
	Now() time.Time
}

// Seeder writes a generated data set through a Writer.
type Seeder struct {
	w      Writer
	cal    *calendar.Calendar
	logger zerolog.Logger
}

func NewSeeder(w Writer, cal *calendar.Calendar, logger zerolog.Logger) *Seeder {
	return &Seeder{w: w, cal: cal, logger: logger}
}

// Seed creates the demo catalog, then cfg.PatientCount patients with
// cfg.ReservationsPerPatient reservations each.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	cfg = cfg.withDefaults()
	gen := NewDataGenerator(cfg.Seed)
	result := &SeedResult{}

	serviceIDs := make([]uuid.UUID, 0, len(demoServices))
	for _, def := range demoServices {
		svc, err := s.w.CreateService(ctx, clinic.ServiceInput{
			Name: &def.name, Price: &def.price, Description: &def.description, Color: &def.color,
		})
		if err != nil {
			return result, fmt.Errorf("seed service %q: %w", def.name, err)
		}
		serviceIDs = append(serviceIDs, svc.ID)
		result.Services++
	}

	today := s.w.Now()
	for i := 0; i < cfg.PatientCount; i++ {
		p, err := s.w.CreatePatient(ctx, gen.GeneratePatient())
		if err != nil {
			return result, fmt.Errorf("seed patient %d: %w", i, err)
		}
		result.Patients++

		for j := 0; j < cfg.ReservationsPerPatient; j++ {
			sid := serviceIDs[gen.rng.Intn(len(serviceIDs))]
			in := gen.GenerateReservation(p.ID, sid, today, cfg.DaysBack, cfg.DaysAhead, s.cal)
			if _, err := s.w.CreateReservation(ctx, in); err != nil {
				return result, fmt.Errorf("seed reservation for patient %s: %w", p.ID, err)
			}
			result.Reservations++
		}
	}
	result.Duration = time.Since(start)

	s.logger.Info().
		Int("patients", result.Patients).
		Int("services", result.Services).
		Int("reservations", result.Reservations).
		Dur("duration", result.Duration).
		Msg("demo data seeded")
	return result, nil
}

// SeedHandler exposes seeding over HTTP for development environments.
type SeedHandler struct {
	seeder *Seeder
	mu     sync.Mutex
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sandbox", auth.RequireRole("admin"))
	g.POST("/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg := DefaultSeedConfig()
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if cfg.PatientCount > 500 || cfg.ReservationsPerPatient > 50 {
		return echo.NewHTTPError(http.StatusBadRequest, "at most 500 patients with 50 reservations each")
	}

	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return clinic.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, result)
}
