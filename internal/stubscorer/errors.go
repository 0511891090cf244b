package stubscorer

import "errors"

// Sentinel kinds for stub scorer errors.
var (
	ErrInvalidConfig = errors.New("invalid stub scorer config")
	ErrTaskNotFound  = errors.New("task not found")
)
