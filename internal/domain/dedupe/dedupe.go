// Package dedupe tracks which identities currently own a submission.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records claimed identities so each one owns at most one recording.
type Deduper interface {
	// SeenAndRecord atomically checks if id was claimed and claims it if not.
	// Returns true if id was already claimed, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord releases a claim, allowing the identity to submit again.
	// Used when a submission was admitted but could not be stored or queued.
	Unrecord(ctx context.Context, id string)

	// Reset drops every claim.
	Reset(ctx context.Context)

	Size() int64
}

// inMemoryDeduper implements Deduper with a plain map. Claims are never
// evicted; they only go away through Unrecord or Reset.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
	size atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{
		seen: make(map[string]struct{}),
	}
}

// SeenAndRecord atomically checks if id was claimed and claims it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

// Unrecord releases a claim.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

// Reset drops every claim.
func (d *inMemoryDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen = make(map[string]struct{})
	d.size.Store(0)
}

// Size returns the current number of claims.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
