package reporting

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
	"github.com/clinicdash/clinic/internal/platform/auth"
)

// SnapshotSource supplies the data reports are computed from.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*clinic.Snapshot, error)
	Now() time.Time
}

// Definition describes a report the API can evaluate.
type Definition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

// Report is the result of evaluating a definition.
type Report struct {
	ReportID    string            `json:"report_id"`
	ReportName  string            `json:"report_name"`
	GeneratedAt time.Time         `json:"generated_at"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Result      interface{}       `json:"result"`
}

// Definitions lists the available reports.
var Definitions = []Definition{
	{
		ID:          "summary",
		Name:        "Resumen general",
		Description: "Dashboard cards: patients, reservations this month, revenue and pending revenue",
		Parameters:  []string{},
	},
	{
		ID:          "period",
		Name:        "Reporte por período",
		Description: "Revenue, average ticket, revenue by service and patient counts for a trailing period",
		Parameters:  []string{"period"},
	},
	{
		ID:          "revenue-trend",
		Name:        "Tendencia de ingresos",
		Description: "Completed revenue per month, week or year, oldest first",
		Parameters:  []string{"periods", "unit"},
	},
	{
		ID:          "service-ranking",
		Name:        "Ranking de servicios",
		Description: "Services ordered by reservation count with completed revenue",
		Parameters:  []string{},
	},
	{
		ID:          "status-breakdown",
		Name:        "Reservas por estado",
		Description: "Reservation count per status and the occupancy rate",
		Parameters:  []string{},
	},
	{
		ID:          "origin-by-week",
		Name:        "Reservas por semana",
		Description: "System and WhatsApp reservations over the last weeks",
		Parameters:  []string{"weeks"},
	},
	{
		ID:          "recent-activity",
		Name:        "Actividad reciente",
		Description: "Most recently created reservations with patient and service names",
		Parameters:  []string{"limit"},
	},
}

// FindDefinition looks up a report by id.
func FindDefinition(id string) *Definition {
	for i := range Definitions {
		if Definitions[i].ID == id {
			return &Definitions[i]
		}
	}
	return nil
}

type Handler struct {
	src SnapshotSource
	cal *calendar.Calendar
}

func NewHandler(src SnapshotSource, cal *calendar.Calendar) *Handler {
	return &Handler{src: src, cal: cal}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reports := api.Group("/reports", auth.RequireRole("admin", "staff"))
	reports.GET("", h.ListReports)
	reports.GET("/:id", h.EvaluateReport)

	export := api.Group("/export", auth.RequireRole("admin"))
	export.GET("/reservations.csv", h.ExportReservations)
}

func (h *Handler) ListReports(c echo.Context) error {
	return c.JSON(http.StatusOK, Definitions)
}

func intParam(c echo.Context, name string, def, min, max int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be an integer between %d and %d", name, min, max))
	}
	return n, nil
}

// EvaluateReport computes the report named by :id over a fresh snapshot.
func (h *Handler) EvaluateReport(c echo.Context) error {
	def := FindDefinition(c.Param("id"))
	if def == nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}

	params := map[string]string{}
	for _, p := range def.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	snap, err := h.src.Snapshot(c.Request().Context())
	if err != nil {
		return clinic.HTTPError(err)
	}
	now := h.src.Now()
	loc := calendar.MatchLocale(c.Request().Header.Get("Accept-Language"))

	var result interface{}
	switch def.ID {
	case "summary":
		result = Summary(snap, now)
	case "period":
		p, err := ParsePeriod(c.QueryParam("period"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		result = BuildPeriodReport(snap, p, now)
	case "revenue-trend":
		n, err := intParam(c, "periods", 6, 1, 60)
		if err != nil {
			return err
		}
		unit := calendar.Month
		if v := c.QueryParam("unit"); v != "" {
			if unit, err = calendar.ParseGranularity(v); err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
		}
		result = RevenueTrend(h.cal, snap.Reservations, snap.Services, n, unit, now, loc)
	case "service-ranking":
		result = ServiceRanking(snap.Reservations, snap.Services)
	case "status-breakdown":
		result = map[string]interface{}{
			"statuses":       StatusBreakdown(snap.Reservations),
			"occupancy_rate": OccupancyRate(snap.Reservations),
			"total":          len(snap.Reservations),
		}
	case "origin-by-week":
		n, err := intParam(c, "weeks", 4, 1, 52)
		if err != nil {
			return err
		}
		result = OriginByWeek(h.cal, snap.Reservations, n, now)
	case "recent-activity":
		n, err := intParam(c, "limit", 8, 1, 100)
		if err != nil {
			return err
		}
		result = RecentActivity(snap, n)
	}

	return c.JSON(http.StatusOK, Report{
		ReportID:    def.ID,
		ReportName:  def.Name,
		GeneratedAt: now,
		Parameters:  params,
		Result:      result,
	})
}

// ExportReservations streams the filtered reservations as CSV.
func (h *Handler) ExportReservations(c echo.Context) error {
	f, err := clinic.ParseReservationFilter(c)
	if err != nil {
		return clinic.HTTPError(err)
	}
	snap, err := h.src.Snapshot(c.Request().Context())
	if err != nil {
		return clinic.HTTPError(err)
	}

	name := "reservas-" + h.src.Now().Format(calendar.DateLayout) + ".csv"
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	res.WriteHeader(http.StatusOK)
	return WriteReservationsCSV(res, snap, f)
}
