package webhook

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdash/clinic/internal/platform/auth"
)

const testEventType = "webhook.test"

// Handler exposes the configured endpoints and their delivery log.
type Handler struct {
	d *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/webhooks", auth.RequireRole("admin"))
	g.GET("", h.ListEndpoints)
	g.GET("/deliveries", h.ListDeliveries)
	g.POST("/test", h.SendTest)
}

func (h *Handler) ListEndpoints(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"endpoints": h.d.Endpoints()})
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"deliveries": h.d.Attempts()})
}

// SendTest posts a synthetic event to every endpoint and waits for the
// results.
func (h *Handler) SendTest(c echo.Context) error {
	if len(h.d.Endpoints()) == 0 {
		return echo.NewHTTPError(http.StatusConflict, "no webhook endpoints configured")
	}
	ev := Event{
		ID:        uuid.NewString(),
		Type:      testEventType,
		Resource:  "webhook",
		Timestamp: time.Now().UTC(),
	}
	// Test events reach every endpoint regardless of its subscriptions.
	var results []Attempt
	payload, err := json.Marshal(ev)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, ep := range h.d.Endpoints() {
		a := h.d.send(c.Request().Context(), ep, ev, payload)
		a.Attempt = 1
		h.d.record(a)
		results = append(results, a)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deliveries": results})
}
