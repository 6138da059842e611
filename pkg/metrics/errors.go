package metrics

import (
	"errors"
)

// Sentinel kinds for metrics errors.
var (
	ErrObserveFailed      = errors.New("metrics observe failed")
	ErrRegistryConflict   = errors.New("metric already registered")
	ErrInvalidMetricValue = errors.New("invalid metric value")
)
