package tools

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultHTTPTimeout bounds a single outbound request made by a tool.
const DefaultHTTPTimeout = 30 * time.Second

// NewHTTPClient returns an instrumented client for tool traffic. Spans are
// only recorded when a tracer provider is installed.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func orDefaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return NewHTTPClient(0)
}
