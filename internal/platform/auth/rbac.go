package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles. Hospital staff own the clinical records, insurance staff own
// policies and claims, and both may read everything.
const (
	RoleHospital  = "hospital"
	RoleInsurance = "insurance"
	RoleAdmin     = "admin"
)

// ReadRoles may read every resource.
var ReadRoles = []string{RoleHospital, RoleInsurance}

// IsKnownRole reports whether role is one of the defined roles.
func IsKnownRole(role string) bool {
	switch role {
	case RoleHospital, RoleInsurance, RoleAdmin:
		return true
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
// The admin role satisfies every requirement.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			if len(userRoles) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			for _, has := range userRoles {
				if has == RoleAdmin {
					return next(c)
				}
				for _, required := range roles {
					if has == required {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
