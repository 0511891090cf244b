// Package service wires the submission pipeline together and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/cadenza/internal/adapters/media"
	eventqueue "github.com/okian/cadenza/internal/adapters/mq/queue"
	workerpool "github.com/okian/cadenza/internal/adapters/mq/worker"
	repository "github.com/okian/cadenza/internal/adapters/repository"
	"github.com/okian/cadenza/internal/domain/dedupe"
	"github.com/okian/cadenza/internal/domain/lifecycle"
	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/portal"
	"github.com/okian/cadenza/internal/domain/scoring"
	"github.com/okian/cadenza/internal/domain/types"
	"github.com/okian/cadenza/pkg/logger"
	"github.com/okian/cadenza/pkg/metrics"
)

// Submission outcomes recorded in metrics.
const (
	outcomeAccepted         = "accepted"
	outcomeRejected         = "rejected"
	outcomeConversionFailed = "conversion_failed"
	outcomeBackpressure     = "backpressure"
	outcomeInterrupted      = "interrupted"
)

// Service implements the API dependencies for the evaluation pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.MemoryStore
	claims     dedupe.Deduper
	lifecycle  *lifecycle.Manager
	portal     *portal.Controller
	jobs       *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Collaborators
	artifacts  media.ArtifactStore
	normalizer media.Normalizer
	evaluator  Evaluator

	// Configuration
	workerCount      int
	queueSize        int
	fallbackSeed     int64
	rescoreOnRestart bool

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of evaluation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the evaluation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithArtifactStore sets where uploaded and canonical media is stored.
func WithArtifactStore(a media.ArtifactStore) Option {
	return func(s *Service) {
		s.artifacts = a
	}
}

// WithNormalizer overrides the default ffmpeg normalizer.
func WithNormalizer(n media.Normalizer) Option {
	return func(s *Service) {
		s.normalizer = n
	}
}

// WithEvaluator sets the remote evaluator. Without one the service runs in
// demo mode: recordings stay pending until the portal closes.
func WithEvaluator(e Evaluator) Option {
	return func(s *Service) {
		s.evaluator = e
	}
}

// WithFallbackSeed seeds the scores assigned on portal close.
func WithFallbackSeed(seed int64) Option {
	return func(s *Service) {
		s.fallbackSeed = seed
	}
}

// WithRescoreOnRestart re-enqueues every recording after a soft restart.
func WithRescoreOnRestart(enabled bool) Option {
	return func(s *Service) {
		s.rescoreOnRestart = enabled
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU() * 4,
		queueSize:    1_000,
		fallbackSeed: 42,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.artifacts == nil {
		return fmt.Errorf("%w: artifact store is required", ErrNotConfigured)
	}
	if s.normalizer == nil {
		s.normalizer = media.NewFFmpegNormalizer(s.artifacts)
	}

	s.logger.Info(ctx, "starting evaluation service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.store = repository.NewMemoryStore(runCtx)
	s.claims = dedupe.NewInMemoryDeduper()
	s.lifecycle = lifecycle.NewManager(s.store)
	s.portal = portal.NewController(s.lifecycle,
		portal.WithFallback(scoring.NewFallbackScorer(scoring.WithSeed(s.fallbackSeed)).Next),
		portal.WithArtifacts(s.artifacts),
		portal.WithClaims(s.claims),
		portal.WithOnSoftRestart(s.onSoftRestart),
	)
	s.jobs = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	if s.evaluator != nil {
		p := &pipeline{
			lifecycle: s.lifecycle,
			evaluator: s.evaluator,
			logger:    s.logger.Named("pipeline"),
		}
		s.workerPool = workerpool.NewPool(s.workerCount, s.jobs, p)
		s.workerPool.Start(runCtx)
	} else {
		s.logger.Warn(ctx, "no evaluator configured, running in demo mode")
	}

	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("demoMode", s.evaluator == nil),
	)
	return nil
}

// Stop drains the workers and releases background resources. In-flight
// evaluations are cancelled once ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping evaluation service...")

	var err error
	if s.workerPool != nil {
		err = s.workerPool.Shutdown(ctx)
	} else {
		_ = s.jobs.Close()
	}
	s.cancel()
	s.store.Close()

	s.started = false
	s.logger.Info(ctx, "evaluation service stopped")
	return err
}

// Submit admits one recording for identity: it claims the identity,
// converts the audio, stores a pending recording and enqueues its
// evaluation. A conversion failure is not an error; the returned recording
// is already closed.
func (s *Service) Submit(ctx context.Context, identity string, audio []byte) (model.Recording, error) {
	if !s.isStarted() {
		return model.Recording{}, ErrNotStarted
	}
	identity = strings.TrimSpace(identity)
	switch {
	case identity == "":
		metrics.RecordSubmission(outcomeRejected)
		return model.Recording{}, ErrMissingIdentity
	case len(audio) == 0:
		metrics.RecordSubmission(outcomeRejected)
		return model.Recording{}, ErrMissingAudio
	}

	var rec model.Recording
	err := s.portal.Admit(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.admit(ctx, identity, audio)
		return err
	})
	if errors.Is(err, portal.ErrClosed) {
		err = ErrPortalClosed
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrBackpressure):
			metrics.RecordSubmission(outcomeBackpressure)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			metrics.RecordSubmission(outcomeInterrupted)
		default:
			metrics.RecordSubmission(outcomeRejected)
		}
		return model.Recording{}, err
	}
	return rec, nil
}

// admit runs under the portal read lock.
func (s *Service) admit(ctx context.Context, identity string, audio []byte) (model.Recording, error) {
	if s.claims.SeenAndRecord(ctx, identity) {
		return model.Recording{}, ErrDuplicateSubmission
	}

	id := s.lifecycle.NewID()
	art, convErr := s.normalizer.Normalize(ctx, id, audio)
	if convErr != nil && ctx.Err() != nil {
		// The caller went away mid-conversion; the upload itself was never judged.
		s.rollback(context.WithoutCancel(ctx), identity,
			model.Recording{ID: id, MediaRef: art.CanonicalRef, OriginalRef: art.OriginalRef})
		return model.Recording{}, fmt.Errorf("submit interrupted: %w", ctx.Err())
	}

	mediaRef := art.CanonicalRef
	if convErr != nil {
		mediaRef = art.OriginalRef
	}
	rec, err := s.lifecycle.Create(ctx, id, identity, mediaRef, art.OriginalRef)
	if err != nil {
		s.rollback(ctx, identity, model.Recording{ID: id, MediaRef: mediaRef, OriginalRef: art.OriginalRef})
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			return model.Recording{}, ErrDuplicateSubmission
		}
		return model.Recording{}, err
	}

	log := s.logger.With(logger.String("recordingID", id), logger.String("identity", identity))

	if convErr != nil {
		log.Warn(ctx, "conversion failed, closing recording", logger.Error(convErr))
		rec, err = s.lifecycle.MarkClosed(ctx, id, rec.Generation, lifecycle.EventConversionFailed,
			model.Result{Error: convErr.Error()})
		if err != nil {
			return model.Recording{}, err
		}
		metrics.RecordSubmission(outcomeConversionFailed)
		return rec, nil
	}

	if s.evaluator != nil {
		if err := s.enqueue(ctx, rec); err != nil {
			log.Warn(ctx, "evaluation queue rejected job", logger.Error(err))
			s.rollback(ctx, identity, rec)
			return model.Recording{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
	}

	metrics.RecordSubmission(outcomeAccepted)
	log.Info(ctx, "recording accepted")
	return rec, nil
}

// rollback undoes a partially admitted submission.
func (s *Service) rollback(ctx context.Context, identity string, rec model.Recording) {
	if err := s.lifecycle.Discard(ctx, rec.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn(ctx, "discard recording failed", logger.String("recordingID", rec.ID), logger.Error(err))
	}
	s.claims.Unrecord(ctx, identity)
	for _, ref := range []string{rec.MediaRef, rec.OriginalRef} {
		if ref == "" {
			continue
		}
		if err := s.artifacts.Delete(ctx, ref); err != nil {
			metrics.RecordArtifactDeleteError()
			s.logger.Warn(ctx, "delete artifact failed", logger.String("ref", ref), logger.Error(err))
		}
	}
}

func (s *Service) enqueue(ctx context.Context, rec model.Recording) error {
	return s.jobs.Enqueue(ctx, eventqueue.Job{
		RecordingID: rec.ID,
		MediaRef:    rec.MediaRef,
		Generation:  rec.Generation,
		EnqueuedAt:  time.Now(),
	})
}

// onSoftRestart re-enqueues reset recordings when rescoring is enabled.
// Recordings whose canonical conversion never succeeded are skipped.
func (s *Service) onSoftRestart(ctx context.Context, reset []model.Recording) {
	if !s.rescoreOnRestart || s.evaluator == nil {
		return
	}
	var queued int
	for _, rec := range reset {
		if rec.MediaRef == "" || rec.MediaRef == rec.OriginalRef {
			continue
		}
		if err := s.enqueue(ctx, rec); err != nil {
			s.logger.Warn(ctx, "rescore not enqueued", logger.String("recordingID", rec.ID), logger.Error(err))
			continue
		}
		queued++
	}
	s.logger.Info(ctx, "rescore enqueued after soft restart", logger.Int("count", queued))
}

// Get returns one recording.
func (s *Service) Get(ctx context.Context, id string) (model.Recording, error) {
	if !s.isStarted() {
		return model.Recording{}, ErrNotStarted
	}
	return s.lifecycle.Get(ctx, id)
}

// ListAll returns every recording ordered by creation time.
func (s *Service) ListAll(ctx context.Context) ([]model.Recording, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.store.List(ctx), nil
}

// Leaderboard returns the scored recordings ranked by score, ties broken
// by submission time.
func (s *Service) Leaderboard(ctx context.Context) ([]types.Entry, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	entries := s.store.Leaderboard(ctx)
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.FromRanked(e.Rank, e.Recording)
	}
	return out, nil
}

// PortalStatus reports whether submissions are admitted.
func (s *Service) PortalStatus(_ context.Context) (model.PortalStatus, error) {
	if !s.isStarted() {
		return model.PortalStatus{}, ErrNotStarted
	}
	return s.portal.Status(), nil
}

// OpenPortal reopens admissions without touching recordings.
func (s *Service) OpenPortal(ctx context.Context) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	s.portal.Open(ctx)
	return nil
}

// ClosePortal assigns fallback scores and stops admissions.
func (s *Service) ClosePortal(ctx context.Context) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	return s.portal.Close(ctx)
}

// RestartPortal reopens the portal in the given mode ("soft" or "hard").
func (s *Service) RestartPortal(ctx context.Context, mode string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	m, err := portal.ParseMode(mode)
	if err != nil {
		return err
	}
	return s.portal.Restart(ctx, m)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"demoMode":    s.evaluator == nil,
	}

	if s.started {
		byStatus := make(map[string]int, len(model.Statuses))
		for st, n := range s.store.CountByStatus(ctx) {
			byStatus[string(st)] = n
		}
		queueLen := s.jobs.Len(ctx)

		stats["queueLength"] = queueLen
		stats["totalRecordings"] = s.store.Count(ctx)
		stats["byStatus"] = byStatus
		stats["claimedIdentities"] = s.claims.Size()
		stats["portalOpen"] = s.portal.Status().IsOpen

		metrics.UpdateQueueSize(queueLen)
		if s.workerPool != nil {
			metrics.UpdateWorkerCount(s.workerPool.Size())
		}
	}
	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
