package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"edge-proxy-go/internal/config"
	"edge-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the admin liveness and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	service *service.ProxyService
	version Version
	started time.Time
}

// NewHealthHandler creates a HealthHandler reporting on svc.
func NewHealthHandler(cfg *config.Config, svc *service.ProxyService, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, service: svc, version: v, started: time.Now()}
}

type statusResponse struct {
	Status        string        `json:"status"`
	Version       string        `json:"version"`
	UpstreamURL   string        `json:"upstream_url"`
	MarkerHeader  string        `json:"marker_header"`
	StripHeaders  []string      `json:"strip_headers"`
	MetricsPath   string        `json:"metrics_path,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Responses     service.Stats `json:"responses"`
}

// Healthz answers liveness probes without touching the upstream; an
// unreachable upstream shows up per request as a 502 and in Status.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Status reports the proxy's configuration and how many responses it has
// relayed from the upstream or synthesized as failures.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := statusResponse{
		Status:        "ok",
		Version:       string(h.version),
		UpstreamURL:   h.cfg.Upstream.BaseURL,
		MarkerHeader:  h.cfg.Response.MarkerHeader,
		StripHeaders:  h.cfg.Upstream.StripHeaders,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Responses:     h.service.Stats(),
	}
	if h.cfg.Metrics.Enabled {
		resp.MetricsPath = h.cfg.Metrics.Path
	}
	return c.JSON(http.StatusOK, resp)
}
