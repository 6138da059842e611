package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrCapacity  = errors.New("event queue at capacity")
	ErrUploading = errors.New("upload already in flight")
)
