package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/healthfed/healthfed/internal/platform/metrics"
)

// HTTPMetrics counts requests by method, matched route and final status.
func HTTPMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if m == nil {
				return err
			}

			status := c.Response().Status
			if err != nil {
				status = StatusOf(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
