package lifecycle

import "errors"

// Sentinel kinds for lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStale             = errors.New("stale recording generation")
	ErrInvalidInput      = errors.New("invalid lifecycle input")
)
