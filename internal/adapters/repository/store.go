// Package repository stores recordings and derives the leaderboard from them.
package repository

import (
	"context"
	"time"

	"github.com/okian/cadenza/internal/domain/model"
)

// Entry represents a leaderboard row. Recording is a copy of the scored
// recording the row was derived from.
type Entry struct {
	Rank        int
	RecordingID string
	Identity    string
	Score       int
	CreatedAt   time.Time
	Recording   model.Recording
}

// Mutator edits a working copy of a recording. Returning an error discards
// the edit.
type Mutator func(r *model.Recording) error

// Store provides read/write access to recordings.
type Store interface {
	// Create inserts a new recording. Returns ErrDuplicateIdentity if the
	// identity already owns one.
	Create(ctx context.Context, r model.Recording) error

	// Get returns a copy of the recording or ErrNotFound.
	Get(ctx context.Context, id string) (model.Recording, error)

	// List returns copies of every recording ordered by creation time.
	List(ctx context.Context) []model.Recording

	// Update applies fn to the recording atomically and returns the result.
	// Returns ErrNotFound if the recording is gone.
	Update(ctx context.Context, id string, fn Mutator) (model.Recording, error)

	// Delete removes one recording.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every recording and returns what was removed.
	DeleteAll(ctx context.Context) []model.Recording

	// Leaderboard returns scored recordings ordered by score desc, then
	// creation time asc, ranked from 1.
	Leaderboard(ctx context.Context) []Entry

	// Count returns the number of recordings.
	Count(ctx context.Context) int

	// CountByStatus returns the number of recordings per status.
	CountByStatus(ctx context.Context) map[model.Status]int
}
