// Package handler adapts the proxy service and admin endpoints to echo.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edge-proxy-go/internal/config"
	"edge-proxy-go/internal/metrics"
)

// routedMethods are the methods echo's router registers for Any. A request
// with any other method never matches a route and would get a 405.
var routedMethods = map[string]bool{
	http.MethodConnect: true,
	http.MethodDelete:  true,
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPatch:   true,
	http.MethodPost:    true,
	echo.PROPFIND:      true,
	http.MethodPut:     true,
	http.MethodTrace:   true,
	echo.REPORT:        true,
}

// RegisterRoutes wires all route handlers onto the Echo instance. Admin routes
// answer GET only; every other method and path is proxied.
//
// It adds a Pre middleware, so it must run after the rest of the Pre chain is
// in place for that chain to wrap proxied requests with unrouted methods.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.Pre(proxyUnroutedMethods(proxy.Handle))

	admin := func(path string, h echo.HandlerFunc) {
		e.Any(path, proxy.Handle)
		e.GET(path, h)
	}

	admin(config.AdminPrefix+"/healthz", health.Healthz)
	admin(config.AdminPrefix+"/status", health.Status)

	if cfg.Metrics.Enabled {
		admin(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", proxy.Handle)
	e.RouteNotFound("/*", proxy.Handle)
}

// proxyUnroutedMethods sends requests whose method echo cannot route (PURGE,
// MKCOL, LOCK, ...) straight to h, skipping the router.
func proxyUnroutedMethods(h echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !routedMethods[c.Request().Method] {
				return h(c)
			}
			return next(c)
		}
	}
}
