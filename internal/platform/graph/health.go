package graph

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

type connectivityChecker interface {
	VerifyConnectivity(ctx context.Context) error
}

// HealthResponse is the body of GET /health/graph.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler verifies connectivity to the graph store. It accepts the
// neo4j.DriverWithContext owned by the composition root.
func HealthHandler(driver connectivityChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "healthy", Store: storeName}
		if err := driver.VerifyConnectivity(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
