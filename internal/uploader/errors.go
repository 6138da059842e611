package uploader

import "errors"

// Sentinel kinds for uploader errors.
var (
	ErrBusy = errors.New("upload already in flight")
)
