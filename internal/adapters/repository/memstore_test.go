package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/cadenza/internal/domain/model"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(context.Background(), WithMetricsUpdateInterval(10*time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id, identity string, offset time.Duration) model.Recording {
	return model.Recording{
		ID:        id,
		Identity:  identity,
		MediaRef:  id + "/canonical.wav",
		Status:    model.StatusPending,
		CreatedAt: epoch.Add(offset),
	}
}

func intPtr(v int) *int { return &v }

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Create(ctx, rec("r1", "ada", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := s.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Identity != "ada" || got.Status != model.StatusPending {
		t.Errorf("unexpected recording: %+v", got)
	}
	if !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("expected UpdatedAt to default to CreatedAt")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_CreateRejects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Create(ctx, rec("r1", "ada", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Create(ctx, rec("r2", "ada", time.Second)); !errors.Is(err, ErrDuplicateIdentity) {
		t.Errorf("expected ErrDuplicateIdentity, got %v", err)
	}
	if err := s.Create(ctx, rec("r1", "grace", time.Second)); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if err := s.Create(ctx, rec("", "grace", 0)); !errors.Is(err, ErrInvalidRecording) {
		t.Errorf("expected ErrInvalidRecording, got %v", err)
	}
	if count := s.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := rec("r1", "ada", 0)
	r.Score = intPtr(10)
	r.Status = model.StatusScored
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	*r.Score = 99
	got, _ := s.Get(ctx, "r1")
	*got.Score = 50

	again, _ := s.Get(ctx, "r1")
	if *again.Score != 10 {
		t.Errorf("store leaked a reference, score is %d", *again.Score)
	}
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	stamp := epoch.Add(time.Hour)
	s := NewMemoryStore(ctx, WithClock(func() time.Time { return stamp }))
	defer s.Close()

	if err := s.Create(ctx, rec("r1", "ada", 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := s.Update(ctx, "r1", func(r *model.Recording) error {
		r.Status = model.StatusUnderReview
		r.TaskID = "task-1"
		r.ID = "hijack"
		r.Identity = "mallory"
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != model.StatusUnderReview || updated.TaskID != "task-1" {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.ID != "r1" || updated.Identity != "ada" {
		t.Errorf("update must not change id or identity: %+v", updated)
	}
	if !updated.UpdatedAt.Equal(stamp) {
		t.Errorf("expected UpdatedAt %v, got %v", stamp, updated.UpdatedAt)
	}

	boom := errors.New("boom")
	_, err = s.Update(ctx, "r1", func(r *model.Recording) error {
		r.Status = model.StatusClosed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected mutator error, got %v", err)
	}
	got, _ := s.Get(ctx, "r1")
	if got.Status != model.StatusUnderReview {
		t.Errorf("failed mutator must not commit, status is %s", got.Status)
	}

	if _, err := s.Update(ctx, "missing", func(*model.Recording) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Create(ctx, rec("r1", "ada", 0))
	_ = s.Create(ctx, rec("r2", "grace", time.Second))

	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.Create(ctx, rec("r3", "ada", 2*time.Second)); err != nil {
		t.Errorf("identity should be free after delete: %v", err)
	}

	removed := s.DeleteAll(ctx)
	if len(removed) != 2 {
		t.Errorf("expected 2 removed recordings, got %d", len(removed))
	}
	if count := s.Count(ctx); count != 0 {
		t.Errorf("expected empty store, got %d", count)
	}
	if _, err := s.Update(ctx, "r2", func(*model.Recording) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after DeleteAll, got %v", err)
	}
}

func TestMemoryStore_ListOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Create(ctx, rec("r3", "c", 3*time.Second))
	_ = s.Create(ctx, rec("r1", "a", 1*time.Second))
	_ = s.Create(ctx, rec("r2", "b", 2*time.Second))

	list := s.List(ctx)
	if len(list) != 3 {
		t.Fatalf("expected 3 recordings, got %d", len(list))
	}
	for i, want := range []string{"r1", "r2", "r3"} {
		if list[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, list[i].ID)
		}
	}
}

func TestMemoryStore_Leaderboard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	scored := func(id, identity string, offset time.Duration, score int) model.Recording {
		r := rec(id, identity, offset)
		r.Status = model.StatusScored
		r.Score = intPtr(score)
		return r
	}
	_ = s.Create(ctx, scored("late", "b", 2*time.Second, 80))
	_ = s.Create(ctx, scored("early", "a", 1*time.Second, 80))
	_ = s.Create(ctx, scored("top", "c", 3*time.Second, 95))
	_ = s.Create(ctx, rec("waiting", "d", 0))
	closed := rec("closed", "e", 0)
	closed.Status = model.StatusClosed
	_ = s.Create(ctx, closed)

	board := s.Leaderboard(ctx)
	if len(board) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(board))
	}
	want := []struct {
		id   string
		rank int
	}{{"top", 1}, {"early", 2}, {"late", 3}}
	for i, w := range want {
		if board[i].RecordingID != w.id || board[i].Rank != w.rank {
			t.Errorf("position %d: expected %s rank %d, got %s rank %d",
				i, w.id, w.rank, board[i].RecordingID, board[i].Rank)
		}
	}

	counts := s.CountByStatus(ctx)
	if counts[model.StatusScored] != 3 || counts[model.StatusPending] != 1 || counts[model.StatusClosed] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if counts[model.StatusUnderReview] != 0 {
		t.Errorf("expected zero under_review, got %d", counts[model.StatusUnderReview])
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.Create(ctx, rec("r1", "ada", 0))

	const writers = 50
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, "r1", func(r *model.Recording) error {
				r.Generation++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "r1")
	if got.Generation != writers {
		t.Errorf("expected generation %d, got %d", writers, got.Generation)
	}
}

func TestMemoryStore_ConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Create(ctx, rec(fmt.Sprintf("r%d", i), "same", 0))
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrDuplicateIdentity) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("expected exactly one create to win, got %d", ok)
	}
}
