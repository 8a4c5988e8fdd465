package assistant

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdash/clinic/internal/domain/clinic"
	"github.com/clinicdash/clinic/internal/platform/auth"
	"github.com/clinicdash/clinic/internal/platform/reporting"
)

const maxMessageLength = 500

// Handler exposes the assistant over HTTP.
type Handler struct {
	assistant *Assistant
	src       reporting.SnapshotSource
	logger    zerolog.Logger
}

func NewHandler(a *Assistant, src reporting.SnapshotSource, logger zerolog.Logger) *Handler {
	return &Handler{assistant: a, src: src, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/assistant", auth.RequireRole("admin", "staff"))
	g.GET("", h.Greet)
	g.POST("/messages", h.SendMessage)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (h *Handler) Greet(c echo.Context) error {
	return c.JSON(http.StatusOK, Greeting())
}

func (h *Handler) SendMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	if utf8.RuneCountInString(msg) > maxMessageLength {
		return echo.NewHTTPError(http.StatusBadRequest, "message must be at most 500 characters")
	}

	snap, err := h.src.Snapshot(c.Request().Context())
	if err != nil {
		return clinic.HTTPError(err)
	}
	reply := h.assistant.Answer(snap, h.src.Now(), msg)
	h.logger.Debug().
		Str("topic", reply.Topic).
		Str("user_id", auth.UserIDFromContext(c.Request().Context())).
		Msg("assistant reply")
	return c.JSON(http.StatusOK, reply)
}
