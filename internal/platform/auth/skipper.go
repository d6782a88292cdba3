package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths lists URL paths that bypass authentication: health checks and
// metrics.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/db":    true,
	"/health/graph": true,
	"/metrics":      true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

// IsPublicPath reports whether the given path is a public infrastructure
// endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[strings.TrimSuffix(path, "/")] || publicPaths[path]
}
