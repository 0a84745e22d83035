package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"edge-proxy-go/internal/config"
	"edge-proxy-go/internal/model"
	"edge-proxy-go/internal/service"
)

// stubDoer answers every request with err, or with an empty 200 when err is nil.
type stubDoer struct{ err error }

func (d *stubDoer) Do(*http.Request) (*model.ProxyResponse, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &model.ProxyResponse{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func newStubService(t *testing.T, cfg *config.Config, d service.Doer) *service.ProxyService {
	t.Helper()
	svc, err := service.NewProxyService(d, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	return svc
}

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/__proxy/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cfg := testConfig("http://127.0.0.1:1")
	h := NewHealthHandler(cfg, newStubService(t, cfg, &stubDoer{}), "test")
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus(t *testing.T) {
	cfg := testConfig(config.DefaultUpstreamURL)
	cfg.Metrics.Enabled = true

	d := &stubDoer{}
	svc := newStubService(t, cfg, d)
	pr := func() *model.ProxyRequest {
		return &model.ProxyRequest{
			Ctx:    t.Context(),
			Method: http.MethodGet,
			Path:   "/",
			Header: http.Header{},
			Body:   http.NoBody,
		}
	}
	_ = svc.Handle(pr()).Body.Close()
	_ = svc.Handle(pr()).Body.Close()
	d.err = errors.New("connect ECONNREFUSED")
	_ = svc.Handle(pr()).Body.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/__proxy/status", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(cfg, svc, "1.2.3")
	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("body.status = %q, want %q", body.Status, "ok")
	}
	if body.Version != "1.2.3" {
		t.Errorf("body.version = %q, want %q", body.Version, "1.2.3")
	}
	if body.UpstreamURL != config.DefaultUpstreamURL {
		t.Errorf("body.upstream_url = %q, want %q", body.UpstreamURL, config.DefaultUpstreamURL)
	}
	if body.MarkerHeader != "X-Powered-By" {
		t.Errorf("body.marker_header = %q, want %q", body.MarkerHeader, "X-Powered-By")
	}
	if strings.Join(body.StripHeaders, ",") != "cf-connecting-ip,cf-ray" {
		t.Errorf("body.strip_headers = %v, want [cf-connecting-ip cf-ray]", body.StripHeaders)
	}
	if body.MetricsPath != config.DefaultMetricsPath {
		t.Errorf("body.metrics_path = %q, want %q", body.MetricsPath, config.DefaultMetricsPath)
	}
	if body.Responses != (service.Stats{Relayed: 2, Failed: 1}) {
		t.Errorf("body.responses = %+v, want {Relayed:2 Failed:1}", body.Responses)
	}
}

func TestStatus_MetricsPathHiddenWhenDisabled(t *testing.T) {
	cfg := testConfig(config.DefaultUpstreamURL)
	h := NewHealthHandler(cfg, newStubService(t, cfg, &stubDoer{}), "test")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/__proxy/status", http.NoBody), rec)
	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if strings.Contains(rec.Body.String(), "metrics_path") {
		t.Errorf("body = %s, want no metrics_path", rec.Body.String())
	}
}
