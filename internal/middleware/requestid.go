package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDKey is the echo context key holding the request ID.
const RequestIDKey = "request_id"

// RequestID returns a middleware that assigns every request an ID for log
// correlation. The edge's cf-ray is preferred, then X-Request-Id, then a fresh
// UUID. The ID is kept on the context only: responses carry upstream headers
// plus the marker and nothing else.
func RequestID() echo.MiddlewareFunc {
	return RequestIDWithGenerator(func() string { return uuid.New().String() })
}

// RequestIDWithGenerator is RequestID with a custom ID generator.
func RequestIDWithGenerator(generator func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			id := h.Get("Cf-Ray")
			if id == "" {
				id = h.Get(echo.HeaderXRequestID)
			}
			if id == "" {
				id = generator()
			}
			c.Set(RequestIDKey, id)
			return next(c)
		}
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(RequestIDKey).(string)
	return id
}
