package handler

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"edge-proxy-go/internal/metrics"
	"edge-proxy-go/internal/model"
	"edge-proxy-go/internal/service"
)

// copyBufferSize matches io.Copy's default buffer.
const copyBufferSize = 32 * 1024

// ProxyHandler forwards every non-admin request to the upstream.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the upstream and streams the response back.
// Upstream failures arrive as a ready-made 502 response, so Handle itself
// only fails when echo does.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	path, rawQuery := splitRequestTarget(req)

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          path,
		RawQuery:      rawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp := h.service.Handle(pr)
	defer func() { _ = resp.Body.Close() }()

	if resp.Synthesized {
		c.Set(metrics.SourceKey, metrics.SourceProxy)
	} else {
		c.Set(metrics.SourceKey, metrics.SourceUpstream)
	}

	w := c.Response()
	copyResponseHeader(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flush := shouldFlush(resp)
	if flush {
		w.Flush()
	}

	// If the copy fails mid-stream (client disconnect, upstream reset) the
	// status line is already out and the client sees a truncated body.
	if err := copyBody(w, resp.Body, flush); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", path,
		)
	}

	return nil
}

// copyResponseHeader copies src into dst. Headers net/http would otherwise
// invent (a sniffed Content-Type, Date) are suppressed when src lacks them.
func copyResponseHeader(dst, src http.Header) {
	for key, vals := range src {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	for _, key := range []string{"Content-Type", "Date"} {
		if _, ok := src[key]; !ok {
			dst[key] = nil
		}
	}
}

// shouldFlush reports whether the body must reach the client as it arrives
// rather than when the server's write buffer fills.
func shouldFlush(resp *model.ProxyResponse) bool {
	if resp.ContentLength == -1 {
		return true
	}
	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return mt == "text/event-stream"
}

// copyBody copies src to w, flushing after every write when flush is set.
func copyBody(w *echo.Response, src io.Reader, flush bool) error {
	if !flush {
		_, err := io.Copy(w, src)
		return err
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			w.Flush()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// splitRequestTarget returns the raw path and query exactly as the client sent
// them. Absolute-form targets ("http://host/path") fall back to the parsed URL.
func splitRequestTarget(req *http.Request) (path, rawQuery string) {
	if strings.HasPrefix(req.RequestURI, "/") {
		path, rawQuery, _ = strings.Cut(req.RequestURI, "?")
		return path, rawQuery
	}

	path = req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}
	return path, req.URL.RawQuery
}
