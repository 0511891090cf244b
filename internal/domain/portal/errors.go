package portal

import "errors"

// Sentinel kinds for portal errors.
var (
	ErrInvalidMode = errors.New("invalid restart mode")
	ErrClosed      = errors.New("portal is closed")
)
