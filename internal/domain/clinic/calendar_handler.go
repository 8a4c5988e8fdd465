package clinic

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/platform/auth"
)

// CalendarEntry is a reservation as drawn on the calendar, joined with the
// names the views display.
type CalendarEntry struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	ServiceID    uuid.UUID `json:"service_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Status       Status    `json:"status"`
	Origin       Origin    `json:"origin"`
	PatientName  string    `json:"patient_name"`
	ServiceName  string    `json:"service_name"`
	ServiceColor string    `json:"service_color"`

	day time.Time
}

func (e *CalendarEntry) CalendarDate() time.Time { return e.day }
func (e *CalendarEntry) CalendarTime() string    { return e.Time }

// CalendarHandler serves the month, week and year views.
type CalendarHandler struct {
	svc *Service
	cal *calendar.Calendar
}

func NewCalendarHandler(svc *Service, cal *calendar.Calendar) *CalendarHandler {
	return &CalendarHandler{svc: svc, cal: cal}
}

func (h *CalendarHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/calendar", auth.RequireRole("admin", "staff"))
	g.GET("/month", h.Month)
	g.GET("/week", h.Week)
	g.GET("/year", h.Year)
	g.GET("/navigate", h.Navigate)
}

func parseDateParam(field, v string) (time.Time, error) {
	d, err := calendar.ParseDate(v)
	if err != nil {
		return time.Time{}, invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

// reference reads ?date=, defaulting to today.
func (h *CalendarHandler) reference(c echo.Context) (time.Time, error) {
	if v := c.QueryParam("date"); v != "" {
		return parseDateParam("date", v)
	}
	return calendar.Day(h.svc.Now()), nil
}

func locale(c echo.Context) calendar.Locale {
	if v := c.QueryParam("locale"); v != "" {
		return calendar.MatchLocale(v)
	}
	return calendar.MatchLocale(c.Request().Header.Get("Accept-Language"))
}

// entries loads the reservations in [from, to) joined with patient and
// service names.
func (h *CalendarHandler) entries(ctx context.Context, from, to time.Time) ([]*CalendarEntry, error) {
	snap, err := h.svc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	patients := make(map[uuid.UUID]*Patient, len(snap.Patients))
	for _, p := range snap.Patients {
		patients[p.ID] = p
	}
	services := make(map[uuid.UUID]*MedicalService, len(snap.Services))
	for _, s := range snap.Services {
		services[s.ID] = s
	}

	var out []*CalendarEntry
	for _, r := range calendar.Window(snap.Reservations, from, to) {
		e := &CalendarEntry{
			ID: r.ID, PatientID: r.PatientID, ServiceID: r.ServiceID,
			Date: r.Date.Format(calendar.DateLayout), Time: r.Time,
			Status: r.Status, Origin: r.Origin, day: r.Date,
		}
		if p, ok := patients[r.PatientID]; ok {
			e.PatientName = p.Name
		}
		if s, ok := services[r.ServiceID]; ok {
			e.ServiceName = s.Name
			e.ServiceColor = s.Color
		}
		out = append(out, e)
	}
	return out, nil
}

func (h *CalendarHandler) Month(c echo.Context) error {
	ref, err := h.reference(c)
	if err != nil {
		return HTTPError(err)
	}
	grid := h.cal.MonthGrid(ref)
	items, err := h.entries(c.Request().Context(), grid[0].Date, grid[len(grid)-1].Date.AddDate(0, 0, 1))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, calendar.BuildMonth(h.cal, ref, items, locale(c)))
}

func (h *CalendarHandler) Week(c echo.Context) error {
	ref, err := h.reference(c)
	if err != nil {
		return HTTPError(err)
	}
	start := h.cal.StartOfWeek(ref)
	items, err := h.entries(c.Request().Context(), start, start.AddDate(0, 0, 7))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, calendar.BuildWeek(h.cal, ref, items, locale(c)))
}

// Year accepts ?year=YYYY or ?date=.
func (h *CalendarHandler) Year(c echo.Context) error {
	var ref time.Time
	if v := c.QueryParam("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return HTTPError(invalid("year", "must be a four digit year"))
		}
		ref = time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	} else {
		var err error
		if ref, err = h.reference(c); err != nil {
			return HTTPError(err)
		}
	}
	start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	items, err := h.entries(c.Request().Context(), start, start.AddDate(1, 0, 0))
	if err != nil {
		return HTTPError(err)
	}
	byService := func(e *CalendarEntry) string { return e.ServiceName }
	return c.JSON(http.StatusOK, calendar.BuildYear(h.cal, ref, items, byService, locale(c)))
}

type navigateResponse struct {
	Date        string               `json:"date"`
	Granularity calendar.Granularity `json:"granularity"`
	Label       string               `json:"label"`
}

// Navigate returns the reference date one unit before or after ?date=.
// direction is "next", "prev" or a signed step count.
func (h *CalendarHandler) Navigate(c echo.Context) error {
	ref, err := h.reference(c)
	if err != nil {
		return HTTPError(err)
	}
	g, err := calendar.ParseGranularity(c.QueryParam("granularity"))
	if err != nil {
		return HTTPError(invalid("granularity", "must be month, week or year"))
	}
	steps, err := parseDirection(c.QueryParam("direction"))
	if err != nil {
		return HTTPError(err)
	}
	next := calendar.Navigate(ref, g, steps)
	return c.JSON(http.StatusOK, navigateResponse{
		Date:        next.Format(calendar.DateLayout),
		Granularity: g,
		Label:       calendar.RangeLabel(h.cal, next, g, locale(c)),
	})
}

func parseDirection(v string) (int, error) {
	switch v {
	case "", "next", "+1":
		return 1, nil
	case "prev", "previous":
		return -1, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid("direction", "must be next, prev or an integer")
	}
	return n, nil
}
