package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Handler serves the session login flow.
type Handler struct {
	sessions *SessionManager
	authn    Authenticator
	logger   zerolog.Logger
}

func NewHandler(sessions *SessionManager, authn Authenticator, logger zerolog.Logger) *Handler {
	return &Handler{sessions: sessions, authn: authn, logger: logger}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool       `json:"success"`
	User      *Principal `json:"user"`
	ExpiresAt string     `json:"expires_at"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	p, err := h.authn.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.Warn().Str("email", req.Email).Str("remote_ip", c.RealIP()).Msg("login rejected")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	token, exp, err := h.sessions.Issue(p)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.SetCookie(h.sessions.Cookie(token, exp))
	h.logger.Info().Str("user_id", p.ID).Msg("login")
	return c.JSON(http.StatusOK, loginResponse{Success: true, User: p, ExpiresAt: exp.UTC().Format(http.TimeFormat)})
}

func (h *Handler) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.ExpiredCookie())
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// Me returns the principal resolved by the session middleware.
func (h *Handler) Me(c echo.Context) error {
	p := PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return c.JSON(http.StatusOK, p)
}
