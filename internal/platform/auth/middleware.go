package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type contextKey string

const (
	PrincipalKey contextKey = "principal"
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// WithPrincipal stores p and its id and role on ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	ctx = context.WithValue(ctx, UserIDKey, p.ID)
	ctx = context.WithValue(ctx, UserRolesKey, []string{p.Role})
	return ctx
}

func setPrincipal(c echo.Context, p *Principal) {
	c.Set("user_id", p.ID)
	c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
}

// tokenFrom reads the session token from the cookie, then from a bearer header.
func tokenFrom(c echo.Context, cookieName string) string {
	if ck, err := c.Cookie(cookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	parts := strings.SplitN(c.Request().Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SessionMiddleware rejects requests without a valid session token.
func SessionMiddleware(sm *SessionManager, skipper middleware.Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			token := tokenFrom(c, sm.CookieName())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			p, err := sm.Parse(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

// DevPrincipal is attached to unauthenticated requests in development.
var DevPrincipal = Principal{ID: "dev-user", Email: "dev@localhost", Name: "Developer", Role: "admin"}

// DevAuthMiddleware accepts a valid session when one is present and falls
// back to DevPrincipal otherwise.
func DevAuthMiddleware(sm *SessionManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sm != nil {
				if token := tokenFrom(c, sm.CookieName()); token != "" {
					if p, err := sm.Parse(token); err == nil {
						setPrincipal(c, p)
						return next(c)
					}
				}
			}
			p := DevPrincipal
			setPrincipal(c, &p)
			return next(c)
		}
	}
}

func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
