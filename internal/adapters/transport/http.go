package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default HTTP transport configuration constants.
const (
	defaultRequestTimeout  = 30 * time.Second
	maxResponseBodyBytes   = 1 << 20 // collectors return small JSON bodies
	defaultContentTypeJSON = "application/json"
)

// HTTPTransport implements Transport on net/http.
type HTTPTransport struct {
	client *http.Client
}

// HTTPOption applies a configuration option to the HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the per-request timeout on the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// NewHTTP creates an HTTP transport with configuration options.
func NewHTTP(opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Submit performs a single HTTP request. No retries happen here.
func (t *HTTPTransport) Submit(ctx context.Context, url, method string, body []byte, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", defaultContentTypeJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("submit: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
