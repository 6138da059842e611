package app

import "errors"

var (
	// ErrNotStarted is returned when an operation is invoked before Start
	// or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("service already started")
	// ErrMissingCollectURL is returned when no event collection endpoint
	// is configured.
	ErrMissingCollectURL = errors.New("collect url not configured")
	// ErrMissingEngageURL is returned when an engagement is requested but
	// no engage endpoint is configured.
	ErrMissingEngageURL = errors.New("engage url not configured")
	// ErrQueueFull is returned when the event queue rejects an append.
	ErrQueueFull = errors.New("event queue full")
	// ErrEngagementFailed is returned when an engagement request fails and
	// no cached response is available.
	ErrEngagementFailed = errors.New("engagement request failed")
)
