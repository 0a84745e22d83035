package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHopByHop_StripsRequestHeaders(t *testing.T) {
	var got http.Header
	e := echo.New()
	e.Use(HopByHop())
	e.GET("/test", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive, X-Internal-Hop")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Proxy-Connection", "keep-alive")
	req.Header.Set("Te", "trailers")
	req.Header.Set("Upgrade", "h2c")
	req.Header.Set("X-Internal-Hop", "1")
	req.Header.Set("Authorization", "Bearer t")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	for _, h := range []string{"Connection", "Keep-Alive", "Proxy-Connection", "Te", "Upgrade", "X-Internal-Hop"} {
		if v := got.Get(h); v != "" {
			t.Errorf("%s = %q, want stripped", h, v)
		}
	}
	if got.Get("Authorization") != "Bearer t" {
		t.Errorf("Authorization = %q, want %q", got.Get("Authorization"), "Bearer t")
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q, want %q", got.Get("Accept"), "application/json")
	}
}

func TestHopByHop_LeavesResponseHeaders(t *testing.T) {
	e := echo.New()
	e.Use(HopByHop())
	e.GET("/test", func(c echo.Context) error {
		c.Response().Header().Set("Content-Type", "text/plain")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options"} {
		if v := rec.Header().Get(h); v != "" {
			t.Errorf("%s = %q, want unset", h, v)
		}
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Error("Content-Type should be kept")
	}
}
