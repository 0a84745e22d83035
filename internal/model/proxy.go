// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
// Path and RawQuery hold the request-target exactly as received, undecoded.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawQuery      string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown
}

// ProxyResponse represents the response streamed back to the client, either
// relayed from upstream or synthesized by the proxy.
type ProxyResponse struct {
	StatusCode    int
	Status        string // reason phrase, e.g. "Bad Gateway"
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64 // -1 when unknown

	// Synthesized is set on responses produced by the proxy itself
	// rather than relayed from the upstream.
	Synthesized bool
}
