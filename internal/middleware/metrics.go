package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/thrive-mt/imageapi/pkg/metrics"
)

// MetricsMiddleware records request counts and latency per route
func MetricsMiddleware(collector *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			collector.RecordHTTPRequest(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}
