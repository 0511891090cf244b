// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/cadenza/internal/domain/model"
)

// Recording is the JSON shape of a recording.
type Recording struct {
	ID        string        `json:"id"`
	Identity  string        `json:"identity"`
	MediaRef  string        `json:"media_reference"`
	Status    string        `json:"status"`
	Score     *int          `json:"score"`
	Result    *model.Result `json:"result"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Entry represents a leaderboard entry: the scored recording plus its rank.
type Entry struct {
	Rank int `json:"rank"`
	Recording
}

// Portal is the JSON shape of the portal status.
type Portal struct {
	IsOpen bool `json:"is_open"`
}

// FromRecording converts a domain recording to its JSON shape.
func FromRecording(r model.Recording) Recording {
	return Recording{
		ID:        r.ID,
		Identity:  r.Identity,
		MediaRef:  r.MediaRef,
		Status:    string(r.Status),
		Score:     r.Score,
		Result:    r.Result,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// FromRanked converts a ranked recording to a leaderboard entry.
func FromRanked(rank int, r model.Recording) Entry {
	return Entry{Rank: rank, Recording: FromRecording(r)}
}

// FromRecordings converts a slice, never returning nil so JSON renders [].
func FromRecordings(rs []model.Recording) []Recording {
	out := make([]Recording, 0, len(rs))
	for _, r := range rs {
		out = append(out, FromRecording(r))
	}
	return out
}
