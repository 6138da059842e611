// Package uploader drives the batch upload cycle.
package uploader

import (
	"time"

	"github.com/okian/funnel/pkg/logger"
)

// Option applies a configuration option to the Uploader.
type Option func(*Uploader)

// WithRetryDelay sets the fixed wait between submission retries.
func WithRetryDelay(d time.Duration) Option {
	return func(u *Uploader) {
		if d >= 0 {
			u.retryDelay = d
		}
	}
}

// WithMaxAttempts bounds submissions per cycle.
func WithMaxAttempts(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// WithHashSecret enables hash-signed submission URLs.
func WithHashSecret(secret string) Option {
	return func(u *Uploader) {
		u.hashSecret = secret
	}
}

// WithClock replaces the retry-wait clock, used by tests.
func WithClock(c Clock) Option {
	return func(u *Uploader) {
		if c != nil {
			u.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}
