package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists routes reachable without a session: infrastructure
// endpoints and the login flow itself.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/db":    true,
	"/metrics":      true,
	"/openapi.json": true,
	"/docs":         true,
	"/auth/login":   true,
	"/auth/logout":  true,
}

// AuthSkipper returns true for requests whose route should skip the session
// check.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
