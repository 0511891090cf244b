package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound          = errors.New("recording not found")
	ErrAlreadyExists     = errors.New("recording already exists")
	ErrDuplicateIdentity = errors.New("identity already owns a recording")
	ErrInvalidRecording  = errors.New("invalid recording")
)
