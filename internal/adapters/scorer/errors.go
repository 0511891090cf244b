package scorer

import "errors"

// Sentinel kinds for remote scorer errors.
var (
	// ErrUpload means every upload attempt failed.
	ErrUpload = errors.New("upload to scorer failed")
	// ErrPoll is one failed poll. It never ends polling on its own.
	ErrPoll = errors.New("poll of scorer failed")
	// ErrEvaluationTimeout means the poll budget ran out without a terminal status.
	ErrEvaluationTimeout = errors.New("evaluation timed out")
	// ErrMissingTaskID is an accepted upload whose body has no task id.
	ErrMissingTaskID = errors.New("scorer response has no task id")
)
