// Package lifecycle owns the recording status state machine and every write
// that moves a recording through it.
package lifecycle

import (
	"fmt"

	"github.com/okian/cadenza/internal/domain/model"
)

// Event is something that happened to a recording.
type Event string

// Lifecycle events.
const (
	EventConversionFailed Event = "conversion_failed"
	EventUploadAccepted   Event = "upload_accepted"
	EventUploadFailed     Event = "upload_failed"
	EventScored           Event = "scored"
	EventEvaluationFailed Event = "evaluation_failed"
	EventFallback         Event = "fallback"
	EventReset            Event = "reset"
)

// transitions maps event -> from -> to. Missing entries are illegal.
var transitions = map[Event]map[model.Status]model.Status{
	EventConversionFailed: {
		model.StatusPending: model.StatusClosed,
	},
	EventUploadAccepted: {
		model.StatusPending: model.StatusUnderReview,
	},
	EventUploadFailed: {
		model.StatusPending: model.StatusClosed,
	},
	EventScored: {
		model.StatusUnderReview: model.StatusScored,
	},
	EventEvaluationFailed: {
		model.StatusPending:     model.StatusClosed,
		model.StatusUnderReview: model.StatusClosed,
	},
	// Portal close scores everything that has no score yet.
	EventFallback: {
		model.StatusPending:     model.StatusScored,
		model.StatusUnderReview: model.StatusScored,
		model.StatusClosed:      model.StatusScored,
	},
	EventReset: {
		model.StatusPending:     model.StatusPending,
		model.StatusUnderReview: model.StatusPending,
		model.StatusScored:      model.StatusPending,
		model.StatusClosed:      model.StatusPending,
	},
}

// Next returns the status a recording in from moves to on ev.
func Next(from model.Status, ev Event) (model.Status, error) {
	to, ok := transitions[ev][from]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, ev)
	}
	return to, nil
}

// CanTransition reports whether any event moves a recording from one
// status to the other.
func CanTransition(from, to model.Status) bool {
	for _, byFrom := range transitions {
		if next, ok := byFrom[from]; ok && next == to {
			return true
		}
	}
	return false
}
