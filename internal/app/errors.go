package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds for service errors. Every admission failure wraps
// ErrValidation so callers can treat them alike.
var (
	ErrValidation          = errors.New("validation failed")
	ErrMissingIdentity     = fmt.Errorf("%w: identity is required", ErrValidation)
	ErrMissingAudio        = fmt.Errorf("%w: audio is required", ErrValidation)
	ErrPortalClosed        = fmt.Errorf("%w: portal is closed", ErrValidation)
	ErrDuplicateSubmission = fmt.Errorf("%w: identity already submitted a recording", ErrValidation)

	ErrBackpressure = errors.New("evaluation queue is full")
	ErrNotStarted   = errors.New("service not started")
)

// ErrNotConfigured reports a missing required dependency at Start.
var ErrNotConfigured = errors.New("service not configured")
