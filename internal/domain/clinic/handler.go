package clinic

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdash/clinic/internal/platform/auth"
	"github.com/clinicdash/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "staff"))
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:id", h.GetPatient)
	g.GET("/services", h.ListServices)
	g.GET("/services/:id", h.GetService)
	g.GET("/reservations", h.ListReservations)
	g.GET("/reservations/:id", h.GetReservation)

	g.POST("/patients", h.CreatePatient)
	g.PATCH("/patients/:id", h.UpdatePatient)
	g.PUT("/patients/:id", h.UpdatePatient)
	g.DELETE("/patients/:id", h.DeletePatient)
	g.POST("/services", h.CreateService)
	g.PATCH("/services/:id", h.UpdateService)
	g.PUT("/services/:id", h.UpdateService)
	g.DELETE("/services/:id", h.DeleteService)
	g.POST("/reservations", h.CreateReservation)
	g.PATCH("/reservations/:id", h.UpdateReservation)
	g.PUT("/reservations/:id", h.UpdateReservation)
	g.PATCH("/reservations/:id/reschedule", h.RescheduleReservation)
	g.DELETE("/reservations/:id", h.DeleteReservation)
}

// HTTPError maps domain errors onto echo errors with a JSON body.
func HTTPError(err error) error {
	var ve *ValidationError
	var nf *NotFoundError
	var re *ReferentialIntegrityError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.As(err, &nf):
		return echo.NewHTTPError(http.StatusNotFound, map[string]string{"error": nf.Error(), "id": nf.ID})
	case errors.As(err, &re):
		return echo.NewHTTPError(http.StatusConflict, map[string]string{"error": re.Error(), "id": re.ID})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func listOptions(pg pagination.Params) ListOptions {
	return ListOptions{Limit: pg.Limit, Offset: pg.Offset, Sort: pg.Sort, Query: pg.Query}
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatientDetail(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), listOptions(pg))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in PatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Service Handlers --

func (h *Handler) CreateService(c echo.Context) error {
	var in ServiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	svc, err := h.svc.CreateService(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, svc)
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	svc, err := h.svc.GetService(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListServices(c.Request().Context(), listOptions(pg))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ServiceInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	svc, err := h.svc.UpdateService(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, svc)
}

func (h *Handler) DeleteService(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteService(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Reservation Handlers --

// ParseReservationFilter reads status, origin, patient_id, service_id, from
// and to query parameters.
func ParseReservationFilter(c echo.Context) (ReservationFilter, error) {
	var f ReservationFilter
	if v := c.QueryParam("status"); v != "" {
		st, ok := ParseStatus(v)
		if !ok {
			return f, invalid("status", "unknown status %q", v)
		}
		f.Status = st
	}
	if v := c.QueryParam("origin"); v != "" {
		o, ok := ParseOrigin(v)
		if !ok {
			return f, invalid("origin", "unknown origin %q", v)
		}
		f.Origin = o
	}
	for _, p := range []struct {
		name string
		dst  *uuid.UUID
	}{{"patient_id", &f.PatientID}, {"service_id", &f.ServiceID}} {
		if v := c.QueryParam(p.name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return f, invalid(p.name, "must be a valid id")
			}
			*p.dst = id
		}
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := c.QueryParam(p.name); v != "" {
			d, err := parseDateParam(p.name, v)
			if err != nil {
				return f, err
			}
			*p.dst = d
		}
	}
	return f, nil
}

func (h *Handler) CreateReservation(c echo.Context) error {
	var in ReservationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.CreateReservation(c.Request().Context(), in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetReservation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetReservation(c.Request().Context(), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListReservations(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := ParseReservationFilter(c)
	if err != nil {
		return HTTPError(err)
	}
	items, total, err := h.svc.ListReservations(c.Request().Context(), f, listOptions(pg))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateReservation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in ReservationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.UpdateReservation(c.Request().Context(), id, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

type rescheduleRequest struct {
	Date string `json:"date"`
}

func (h *Handler) RescheduleReservation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Date == "" {
		return HTTPError(invalid("date", "is required"))
	}
	d, err := parseDateParam("date", req.Date)
	if err != nil {
		return HTTPError(err)
	}
	r, err := h.svc.RescheduleReservation(c.Request().Context(), id, d)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReservation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteReservation(c.Request().Context(), id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
