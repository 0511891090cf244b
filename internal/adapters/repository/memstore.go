package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/pkg/metrics"
)

// slot holds one recording behind its own lock so read-modify-write cycles
// on different recordings never contend.
type slot struct {
	mu      sync.Mutex
	rec     model.Recording
	removed bool
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*slot
	byIdentity map[string]string

	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs a memory store with configuration options. The
// metrics updater runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]*slot),
		byIdentity:            make(map[string]string),
		metricsUpdateInterval: 5 * time.Second,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, r model.Recording) error {
	if r.ID == "" || r.Identity == "" {
		return fmt.Errorf("%w: id and identity are required", ErrInvalidRecording)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[r.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, r.ID)
	}
	if _, exists := s.byIdentity[r.Identity]; exists {
		metrics.RecordErrorByComponent("repository", "duplicate_identity")
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, r.Identity)
	}

	rec := r.Clone()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.byID[rec.ID] = &slot{rec: rec}
	s.byIdentity[rec.Identity] = rec.ID
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Recording, error) {
	sl := s.lookup(id)
	if sl == nil {
		return model.Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed {
		return model.Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sl.rec.Clone(), nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context) []model.Recording {
	slots := s.snapshotSlots()
	out := make([]model.Recording, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		if !sl.removed {
			out = append(out, sl.rec.Clone())
		}
		sl.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Update implements Store.Update. The mutator works on a copy; the copy is
// committed only when it returns nil. ID and Identity cannot be changed.
func (s *MemoryStore) Update(_ context.Context, id string, fn Mutator) (model.Recording, error) {
	sl := s.lookup(id)
	if sl == nil {
		return model.Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed {
		return model.Recording{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	work := sl.rec.Clone()
	if err := fn(&work); err != nil {
		return sl.rec.Clone(), err
	}
	work.ID = sl.rec.ID
	work.Identity = sl.rec.Identity
	work.UpdatedAt = s.now()
	sl.rec = work
	return work.Clone(), nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	sl, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		delete(s.byIdentity, sl.rec.Identity)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	sl.mu.Lock()
	sl.removed = true
	sl.mu.Unlock()
	return nil
}

// DeleteAll implements Store.DeleteAll.
func (s *MemoryStore) DeleteAll(_ context.Context) []model.Recording {
	s.mu.Lock()
	slots := s.byID
	s.byID = make(map[string]*slot)
	s.byIdentity = make(map[string]string)
	s.mu.Unlock()

	removed := make([]model.Recording, 0, len(slots))
	for _, sl := range slots {
		sl.mu.Lock()
		sl.removed = true
		removed = append(removed, sl.rec.Clone())
		sl.mu.Unlock()
	}
	return removed
}

// Leaderboard implements Store.Leaderboard.
func (s *MemoryStore) Leaderboard(ctx context.Context) []Entry {
	var entries []Entry
	for _, r := range s.List(ctx) {
		if r.Status != model.StatusScored || r.Score == nil {
			continue
		}
		entries = append(entries, Entry{
			RecordingID: r.ID,
			Identity:    r.Identity,
			Score:       *r.Score,
			CreatedAt:   r.CreatedAt,
			Recording:   r,
		})
	}
	sortEntries(entries)
	assignRanks(entries)
	return entries
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// CountByStatus implements Store.CountByStatus.
func (s *MemoryStore) CountByStatus(ctx context.Context) map[model.Status]int {
	counts := make(map[model.Status]int, len(model.Statuses))
	for _, st := range model.Statuses {
		counts[st] = 0
	}
	for _, r := range s.List(ctx) {
		counts[r.Status]++
	}
	return counts
}

func (s *MemoryStore) lookup(id string) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

func (s *MemoryStore) snapshotSlots() []*slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*slot, 0, len(s.byID))
	for _, sl := range s.byID {
		out = append(out, sl)
	}
	return out
}

// startMetricsUpdater starts a background goroutine that publishes
// recordings-by-status gauges.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics(ctx)
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics(ctx context.Context) {
	for status, n := range s.CountByStatus(ctx) {
		metrics.UpdateRecordingsByStatus(string(status), n)
	}
}

// sortEntries orders by score desc, then creation time asc, then id.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].RecordingID < entries[j].RecordingID
	})
}

// assignRanks numbers sorted entries from 1. Ties are already broken by
// submission time so every rank is distinct.
func assignRanks(entries []Entry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
