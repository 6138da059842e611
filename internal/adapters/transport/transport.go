// Package transport defines how the SDK talks to the remote collector.
//
// Retry and disposition logic live in the uploader; a Transport performs
// exactly one submission and reports what happened.
package transport

import (
	"context"
)

// Transport submits one request to the backend. A non-nil error means the
// request never produced a response (DNS failure, timeout, connection reset);
// status and body are only meaningful when err is nil.
type Transport interface {
	Submit(ctx context.Context, url, method string, body []byte, headers map[string]string) (status int, responseBody []byte, err error)
}
