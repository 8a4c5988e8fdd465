package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
	docsCSP = "default-src 'none'; script-src 'unsafe-inline' https://unpkg.com; " +
		"style-src 'unsafe-inline' https://unpkg.com; img-src data: https://unpkg.com; " +
		"connect-src 'self'; frame-ancestors 'none'"
)

// SecurityHeadersConfig tunes SecurityHeaders.
type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security; enable only behind TLS.
	HSTS bool
	// DocsPrefixes get a CSP that lets the Swagger UI page load its assets.
	DocsPrefixes []string
}

// SecurityHeaders sets the response headers expected of a JSON API serving
// patient data to a browser dashboard.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			csp := apiCSP
			for _, p := range cfg.DocsPrefixes {
				if strings.HasPrefix(c.Request().URL.Path, p) {
					csp = docsCSP
					break
				}
			}
			h.Set("Content-Security-Policy", csp)

			// Patient records must not linger in shared caches.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
