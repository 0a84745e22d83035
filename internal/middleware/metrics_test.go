package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"edge-proxy-go/internal/metrics"
)

// findRequestsTotal returns the edge_proxy_http_requests_total sample whose
// route label matches, or nil.
func findRequestsTotal(t *testing.T, m *metrics.Metrics, route string) *dto.Metric {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() != "edge_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			if labelMap(metric)["route"] == route {
				return metric
			}
		}
	}
	return nil
}

func labelMap(metric *dto.Metric) map[string]string {
	labels := make(map[string]string)
	for _, lp := range metric.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	return labels
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/v3/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v3/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	metric := findRequestsTotal(t, m, "upstream")
	if metric == nil {
		t.Fatal("expected edge_proxy_http_requests_total with route=upstream")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
	labels := labelMap(metric)
	if labels["status_code"] != "200" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "200")
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/__proxy/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/__proxy/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "edge_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if labelMap(metric)["route"] == "/__proxy/healthz" && metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected edge_proxy_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/v3/test", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too large")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v3/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	metric := findRequestsTotal(t, m, "upstream")
	if metric == nil {
		t.Fatal("expected edge_proxy_http_requests_total with route=upstream")
	}
	labels := labelMap(metric)
	if labels["status_code"] != "413" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "413")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest("PROPFIND", "/dav/file", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	metric := findRequestsTotal(t, m, "upstream")
	if metric == nil {
		t.Fatal("expected edge_proxy_http_requests_total with route=upstream")
	}
	labels := labelMap(metric)
	if labels["method"] != "other" {
		t.Errorf("method = %q, want %q", labels["method"], "other")
	}
}

func TestMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "edge_proxy_http_requests_in_flight" {
			if v := f.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Errorf("in-flight = %v, want 0", v)
			}
			return
		}
	}
	t.Error("expected edge_proxy_http_requests_in_flight")
}

func TestMetricsMiddleware_SourceLabel(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"synthesized failure", metrics.SourceProxy, "proxy"},
		{"relayed upstream 502", metrics.SourceUpstream, "upstream"},
		{"unset is local", "", "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()

			e := echo.New()
			e.Use(MetricsMiddleware(m))
			e.GET("/api/data", func(c echo.Context) error {
				if tt.source != "" {
					c.Set(metrics.SourceKey, tt.source)
				}
				return c.String(http.StatusBadGateway, "Erro ao conectar: boom")
			})

			e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/data", http.NoBody))

			metric := findRequestsTotal(t, m, "upstream")
			if metric == nil {
				t.Fatal("expected edge_proxy_http_requests_total with route=upstream")
			}
			labels := labelMap(metric)
			if labels["source"] != tt.want {
				t.Errorf("source = %q, want %q", labels["source"], tt.want)
			}
			if labels["status_code"] != "502" {
				t.Errorf("status_code = %q, want %q", labels["status_code"], "502")
			}
		})
	}
}
