// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle stage of a Recording.
type Status string

// Recording statuses.
const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusScored      Status = "scored"
	StatusClosed      Status = "closed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusUnderReview, StatusScored, StatusClosed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusScored, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no evaluation transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusScored || s == StatusClosed
}

// Recording is one submission attempt.
type Recording struct {
	ID          string    // opaque unique id, immutable
	Identity    string    // submitter key, e.g. email
	MediaRef    string    // canonical audio, or the raw upload when conversion failed
	OriginalRef string    // raw upload; empty once the canonical artifact replaced it
	Status      Status    // lifecycle stage
	Score       *int      // set only when Status == StatusScored
	Result      *Result   // audit payload of the last evaluation
	TaskID      string    // remote task handle once the upload was accepted
	Generation  int       // bumped by every soft restart
	CreatedAt   time.Time // immutable
	UpdatedAt   time.Time
}

// Clone returns a deep copy so callers never share pointers with the store.
func (r Recording) Clone() Recording {
	out := r
	if r.Score != nil {
		s := *r.Score
		out.Score = &s
	}
	if r.Result != nil {
		res := *r.Result
		if r.Result.Raw != nil {
			res.Raw = append(json.RawMessage(nil), r.Result.Raw...)
		}
		out.Result = &res
	}
	return out
}

// Result keeps the remote payload or the local diagnostic for audit.
type Result struct {
	Status string          `json:"status,omitempty"` // remote status, when one was observed
	Error  string          `json:"error,omitempty"`  // diagnostic for failures
	Raw    json.RawMessage `json:"raw,omitempty"`    // remote body as received
}

// PortalStatus is the process-wide admission flag.
type PortalStatus struct {
	IsOpen bool
}

// Job is the unit of background evaluation work.
type Job struct {
	RecordingID string
	MediaRef    string
	Generation  int
	EnqueuedAt  time.Time
}
