package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadenza/internal/adapters/repository"
	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/scoring"
	"github.com/okian/cadenza/pkg/logger"
	"github.com/okian/cadenza/pkg/metrics"
)

// Reasons a background write was dropped.
const (
	DropNotFound          = "not_found"
	DropStale             = "stale"
	DropInvalidTransition = "invalid_transition"
)

// Diagnostics stored on recordings closed without a score.
const (
	diagNoScoredItems  = "evaluation completed without scored items"
	diagRemoteFailed   = "remote evaluation failed"
	diagUnknownOutcome = "remote evaluation ended with unexpected status"
)

// Manager applies lifecycle transitions to stored recordings. Every write
// is a single atomic Store.Update.
type Manager struct {
	store  repository.Store
	logger logger.Logger
	now    func() time.Time
	newID  func() string
}

// NewManager creates a lifecycle manager over store.
func NewManager(store repository.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		logger: logger.Get().Named("lifecycle"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID mints a recording id.
func (m *Manager) NewID() string {
	return m.newID()
}

// Create stores a new pending recording. An empty id is replaced by a
// freshly minted one. mediaRef may be empty when nothing could be stored.
func (m *Manager) Create(ctx context.Context, id, identity, mediaRef, originalRef string) (model.Recording, error) {
	if identity == "" {
		return model.Recording{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if id == "" {
		id = m.newID()
	}
	now := m.now()
	rec := model.Recording{
		ID:          id,
		Identity:    identity,
		MediaRef:    mediaRef,
		OriginalRef: originalRef,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return model.Recording{}, fmt.Errorf("create recording: %w", err)
	}
	return rec, nil
}

// Get returns the current state of a recording.
func (m *Manager) Get(ctx context.Context, id string) (model.Recording, error) {
	return m.store.Get(ctx, id)
}

// Discard removes a recording that never made it into the pipeline.
func (m *Manager) Discard(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// MarkUnderReview records the remote task handle once the upload was accepted.
func (m *Manager) MarkUnderReview(ctx context.Context, id string, gen int, taskID string) (model.Recording, error) {
	return m.apply(ctx, id, gen, EventUploadAccepted, func(r *model.Recording) {
		r.TaskID = taskID
	})
}

// MarkScored stores a final score.
func (m *Manager) MarkScored(ctx context.Context, id string, gen int, score int, result *model.Result) (model.Recording, error) {
	rec, err := m.apply(ctx, id, gen, EventScored, func(r *model.Recording) {
		s := score
		r.Score = &s
		r.Result = result
	})
	if err == nil {
		metrics.RecordScore(score)
	}
	return rec, err
}

// MarkClosed ends the recording without a score, keeping result for audit.
func (m *Manager) MarkClosed(ctx context.Context, id string, gen int, ev Event, result model.Result) (model.Recording, error) {
	return m.apply(ctx, id, gen, ev, func(r *model.Recording) {
		r.Score = nil
		res := result
		r.Result = &res
	})
}

// Resolve applies a terminal remote evaluation. Only a completed
// evaluation with at least one scored item produces a score.
func (m *Manager) Resolve(ctx context.Context, id string, gen int, ev model.Evaluation) (model.Recording, error) {
	result := model.Result{Status: ev.Status, Raw: ev.Raw}

	switch ev.Status {
	case model.RemoteCompleted:
		if score := scoring.Extract(ev); score != nil {
			return m.MarkScored(ctx, id, gen, *score, &result)
		}
		result.Error = diagNoScoredItems
	case model.RemoteFailed:
		result.Error = diagRemoteFailed
	default:
		result.Error = fmt.Sprintf("%s: %q", diagUnknownOutcome, ev.Status)
	}
	return m.MarkClosed(ctx, id, gen, EventEvaluationFailed, result)
}

// Fail closes the recording with err as diagnostic. Failures before the
// upload was accepted use EventUploadFailed so the recording never passes
// through under_review.
func (m *Manager) Fail(ctx context.Context, id string, gen int, ev Event, cause error) (model.Recording, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return m.MarkClosed(ctx, id, gen, ev, model.Result{Error: msg})
}

// AssignFallback scores every recording that has no score yet using next
// and returns how many were scored. Already scored recordings are untouched.
func (m *Manager) AssignFallback(ctx context.Context, next func() int) (int, error) {
	assigned := 0
	for _, rec := range m.store.List(ctx) {
		if rec.Score != nil {
			continue
		}
		_, err := m.store.Update(ctx, rec.ID, func(r *model.Recording) error {
			if r.Score != nil {
				return errAlreadyScored
			}
			to, err := Next(r.Status, EventFallback)
			if err != nil {
				return err
			}
			s := next()
			r.Status = to
			r.Score = &s
			return nil
		})
		switch {
		case err == nil:
			assigned++
		case errors.Is(err, errAlreadyScored), errors.Is(err, repository.ErrNotFound):
			// lost a race with a completing evaluation or a delete
		default:
			return assigned, fmt.Errorf("fallback score %s: %w", rec.ID, err)
		}
	}
	m.logger.Info(ctx, "fallback scores assigned", logger.Int("count", assigned))
	return assigned, nil
}

// ResetAll moves every recording back to a clean pending state and bumps its
// generation so in-flight work for the old generation is ignored.
func (m *Manager) ResetAll(ctx context.Context) ([]model.Recording, error) {
	list := m.store.List(ctx)
	out := make([]model.Recording, 0, len(list))
	for _, rec := range list {
		updated, err := m.store.Update(ctx, rec.ID, func(r *model.Recording) error {
			to, err := Next(r.Status, EventReset)
			if err != nil {
				return err
			}
			r.Status = to
			r.Score = nil
			r.Result = nil
			r.TaskID = ""
			r.Generation++
			return nil
		})
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("reset %s: %w", rec.ID, err)
		}
		out = append(out, updated)
	}
	m.logger.Info(ctx, "recordings reset", logger.Int("count", len(out)))
	return out, nil
}

// DeleteAll removes every recording and returns what was removed.
func (m *Manager) DeleteAll(ctx context.Context) []model.Recording {
	return m.store.DeleteAll(ctx)
}

// apply runs one guarded transition.
func (m *Manager) apply(ctx context.Context, id string, gen int, ev Event, edit func(*model.Recording)) (model.Recording, error) {
	return m.store.Update(ctx, id, func(r *model.Recording) error {
		if r.Generation != gen {
			return fmt.Errorf("%w: have %d, write carries %d", ErrStale, r.Generation, gen)
		}
		to, err := Next(r.Status, ev)
		if err != nil {
			return err
		}
		r.Status = to
		edit(r)
		return nil
	})
}

var errAlreadyScored = errors.New("already scored")

// DropReason classifies errors from background writes that should be
// logged and ignored rather than treated as failures.
func DropReason(err error) (string, bool) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return DropNotFound, true
	case errors.Is(err, ErrStale):
		return DropStale, true
	case errors.Is(err, ErrInvalidTransition):
		return DropInvalidTransition, true
	}
	return "", false
}
