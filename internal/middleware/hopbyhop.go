package middleware

import (
	"net/http"

	"github.com/golang/gddo/httputil/header"
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are connection-scoped and never forwarded upstream.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HopByHop returns an Echo middleware that removes hop-by-hop headers from the
// inbound request, including any header named by a Connection token.
// Response headers are left alone.
func HopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			stripHopByHop(c.Request().Header)
			return next(c)
		}
	}
}

func stripHopByHop(h http.Header) {
	// Connection tokens must be read before Connection itself is removed.
	for _, name := range header.ParseList(h, "Connection") {
		h.Del(name)
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
