package media

import "errors"

// Sentinel kinds for media errors.
var (
	ErrConversion       = errors.New("audio conversion failed")
	ErrArtifactNotFound = errors.New("media artifact not found")
	ErrInvalidRef       = errors.New("invalid media reference")
	ErrStorage          = errors.New("media storage failed")
)
