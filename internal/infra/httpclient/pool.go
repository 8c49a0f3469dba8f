// Package httpclient provides pooled HTTP clients for the outbound
// adapters (Ollama, remote extraction).
package httpclient

import (
	"net/http"
	"time"
)

// sharedTransport is reused across all pooled clients so repeated calls to
// the same model server keep their connections warm instead of paying a
// handshake per request.
var sharedTransport = &http.Transport{
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
	DisableKeepAlives:   false,
}

// NewPooledClient creates an http.Client with the shared connection pool
// and its own overall timeout.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}
