package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"edge-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request, labelled by who produced the response: the
// upstream, the proxy's own failure path, or a local route.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			m.ObserveRequest(c.Request().Method, responseStatus(c, err), c.Request().URL.Path,
				responseSource(c), time.Since(start))
			return err
		}
	}
}

// responseStatus resolves the status the client will see. A returned
// *echo.HTTPError is written later by echo's error handler.
func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

func responseSource(c echo.Context) string {
	if s, ok := c.Get(metrics.SourceKey).(string); ok {
		return s
	}
	return metrics.SourceLocal
}
