package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthfed/healthfed/internal/platform/auth"
)

// AuditEntry records who touched which clinical or insurance resource.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	ResourceType string
	ResourceID   string
	View         string
	PatientID    string
	Action       string // read, create, update, delete
	IPAddress    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

// Audit logs every /api call as a "phi_access" event after the handler has
// run, so the entry carries the final status.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c)
			if err != nil {
				entry.StatusCode = StatusOf(err)
			}

			logger.Info().
				Str("type", "phi_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("view", entry.View).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context) AuditEntry {
	req := c.Request()
	ctx := req.Context()

	resourceType, resourceID, view := splitAPIPath(req.URL.Path)
	entry := AuditEntry{
		Timestamp:    time.Now().UTC(),
		Path:         req.URL.Path,
		Method:       req.Method,
		IPAddress:    c.RealIP(),
		StatusCode:   c.Response().Status,
		UserID:       auth.UserIDFromContext(ctx),
		UserRoles:    auth.RolesFromContext(ctx),
		Action:       httpMethodToAction(req.Method),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		View:         view,
	}
	if rid, ok := c.Get("request_id").(string); ok {
		entry.RequestID = rid
	}
	if resourceType == "patients" {
		entry.PatientID = resourceID
	}
	return entry
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitAPIPath breaks /api/<type>[/<id>[/<view>]] into its parts.
//
//	/api/patients               -> patients, "", ""
//	/api/patients/12            -> patients, 12, ""
//	/api/claims/CLM001/complete -> claims, CLM001, complete
func splitAPIPath(path string) (resourceType, id, view string) {
	rest := strings.Trim(strings.TrimPrefix(path, "/api/"), "/")
	parts := strings.SplitN(rest, "/", 3)
	resourceType = parts[0]
	if len(parts) > 1 {
		id = parts[1]
	}
	if len(parts) > 2 {
		view = parts[2]
	}
	if resourceType == "" {
		resourceType = "unknown"
	}
	return resourceType, id, view
}
