// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"edge-proxy-go/internal/config"
	"edge-proxy-go/internal/model"
)

// failurePrefix starts the body of every synthesized 502 response.
const failurePrefix = "Erro ao conectar: "

// Doer sends an outbound request and returns the upstream response.
// *client.UpstreamClient satisfies it.
type Doer interface {
	Do(req *http.Request) (*model.ProxyResponse, error)
}

// UpstreamError reports that no upstream response could be obtained for a
// request: connection refused, DNS failure, timeout, TLS or protocol errors,
// or an outbound request that could not be built at all.
type UpstreamError struct {
	Target string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream unreachable (%s): %v", e.Target, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client       Doer
	logger       *slog.Logger
	baseURL      string
	basePath     string
	stripHeaders []string
	markerHeader string
	markerValue  string

	relayed atomic.Int64
	failed  atomic.Int64
}

// Stats counts responses handled since start.
type Stats struct {
	Relayed int64 `json:"relayed"`
	Failed  int64 `json:"failed"`
}

// NewProxyService creates a ProxyService bound to the configured upstream.
func NewProxyService(c Doer, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	base := strings.TrimRight(cfg.Upstream.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &ProxyService{
		client:       c,
		logger:       logger.With("component", "proxy_service"),
		baseURL:      base,
		basePath:     u.EscapedPath(),
		stripHeaders: cfg.Upstream.StripHeaders,
		markerHeader: cfg.Response.MarkerHeader,
		markerValue:  cfg.Response.MarkerValue,
	}, nil
}

// Handle forwards pr and always returns a response: the upstream's, carrying
// the marker header, or a synthesized 502 when the upstream is unreachable.
// The caller is responsible for closing the response body.
func (s *ProxyService) Handle(pr *model.ProxyRequest) *model.ProxyResponse {
	resp, err := s.Forward(pr)
	if err == nil {
		s.relayed.Add(1)
		return resp
	}
	s.failed.Add(1)

	if errors.Is(err, context.Canceled) {
		s.logger.Info("client disconnected before upstream responded",
			"method", pr.Method,
			"path", pr.Path,
		)
	} else {
		s.logger.Warn("upstream unreachable",
			"method", pr.Method,
			"path", pr.Path,
			"err", err,
		)
	}
	return badGateway(faultMessage(err))
}

// Stats returns the relayed and failed response counts.
func (s *ProxyService) Stats() Stats {
	return Stats{Relayed: s.relayed.Load(), Failed: s.failed.Load()}
}

// Forward sends a ProxyRequest to the upstream and returns the marked response.
// Every failure is reported as an *UpstreamError.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target := s.targetURL(pr.Path, pr.RawQuery)

	req, err := s.buildRequest(pr)
	if err != nil {
		return nil, &UpstreamError{Target: target, Err: err}
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", target,
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Target: target, Err: err}
	}

	resp.Header.Set(s.markerHeader, s.markerValue)
	return resp, nil
}

// targetURL concatenates the upstream base with the raw path and query. It
// names the request in logs and errors; the wire form is built by buildRequest.
func (s *ProxyService) targetURL(path, rawQuery string) string {
	target := s.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

func (s *ProxyService) buildRequest(pr *model.ProxyRequest) (*http.Request, error) {
	hasBody := pr.Body != nil && pr.Body != http.NoBody && pr.ContentLength != 0

	var body io.Reader = http.NoBody
	if hasBody {
		body = pr.Body
	}

	// Only the base is parsed; path and query are attached as raw bytes so a
	// '#' or a non-canonical escape reaches the upstream untouched.
	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, s.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if hasBody {
		req.ContentLength = pr.ContentLength
	}
	if err := setRawPath(req.URL, s.basePath+pr.Path); err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.URL.RawQuery = pr.RawQuery

	req.Header = s.filterRequestHeaders(pr.Header)
	if _, ok := req.Header["User-Agent"]; !ok {
		// Suppress Go's default User-Agent; only the client's own is forwarded.
		req.Header.Set("User-Agent", "")
	}
	return req, nil
}

// setRawPath puts raw on u as the request path. net/http re-escapes paths it
// considers non-canonical, so those go out through Opaque. A raw path starting
// with "//" would be read back as an authority and keeps the parsed form.
func setRawPath(u *url.URL, raw string) error {
	p, err := url.PathUnescape(raw)
	if err != nil {
		return err
	}
	u.Path, u.RawPath = p, raw
	if u.EscapedPath() != raw && !strings.HasPrefix(raw, "//") {
		u.Opaque = raw
	}
	return nil
}

// filterRequestHeaders clones src without the configured strip headers.
func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	for key := range dst {
		for _, strip := range s.stripHeaders {
			if strings.EqualFold(key, strip) {
				delete(dst, key)
				break
			}
		}
	}
	return dst
}

// faultMessage describes err for the client. Go's `Get "http://...":`
// decoration is dropped so the text names only the fault itself.
func faultMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}

// badGateway builds the synthesized failure response.
func badGateway(message string) *model.ProxyResponse {
	body := failurePrefix + message
	return &model.ProxyResponse{
		StatusCode: http.StatusBadGateway,
		Status:     http.StatusText(http.StatusBadGateway),
		Header: http.Header{
			"Content-Type": {"text/plain; charset=utf-8"},
		},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Synthesized:   true,
	}
}
