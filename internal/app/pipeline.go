package service

import (
	"context"

	"github.com/okian/cadenza/internal/adapters/mq/queue"
	"github.com/okian/cadenza/internal/adapters/scorer"
	"github.com/okian/cadenza/internal/domain/lifecycle"
	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/pkg/logger"
	"github.com/okian/cadenza/pkg/metrics"
)

// Evaluator runs one remote evaluation. onAccepted is called once the
// remote side accepted the upload.
type Evaluator interface {
	SubmitAndAwait(ctx context.Context, ref string, onAccepted func(ctx context.Context, taskID string) error) (model.Evaluation, error)
}

// pipeline carries a queued job to a terminal recording state.
type pipeline struct {
	lifecycle *lifecycle.Manager
	evaluator Evaluator
	logger    logger.Logger
}

// Process implements worker.Processor. Evaluation failures end up on the
// recording; only unexpected store errors are returned.
func (p *pipeline) Process(ctx context.Context, j queue.Job) error {
	log := p.logger.With(
		logger.String("recordingID", j.RecordingID),
		logger.Int("generation", j.Generation),
	)

	rec, err := p.lifecycle.Get(ctx, j.RecordingID)
	switch {
	case err != nil:
		return p.drop(ctx, log, err)
	case rec.Generation != j.Generation:
		return p.drop(ctx, log, lifecycle.ErrStale)
	case rec.Status != model.StatusPending:
		return p.drop(ctx, log, lifecycle.ErrInvalidTransition)
	}

	ev, err := p.evaluator.SubmitAndAwait(ctx, j.MediaRef, func(ctx context.Context, taskID string) error {
		_, err := p.lifecycle.MarkUnderReview(ctx, j.RecordingID, j.Generation, taskID)
		return err
	})

	var werr error
	switch {
	case err == nil:
		rec, werr = p.lifecycle.Resolve(ctx, j.RecordingID, j.Generation, ev)
	case ctx.Err() != nil:
		log.Warn(ctx, "evaluation interrupted by shutdown", logger.Error(err))
		return nil
	case isDrop(err):
		werr = err
	case scorer.IsUploadFailure(err):
		rec, werr = p.lifecycle.Fail(ctx, j.RecordingID, j.Generation, lifecycle.EventUploadFailed, err)
	default:
		rec, werr = p.lifecycle.Fail(ctx, j.RecordingID, j.Generation, lifecycle.EventEvaluationFailed, err)
	}
	if werr != nil {
		return p.drop(ctx, log, werr)
	}

	log.Info(ctx, "evaluation finished",
		logger.String("status", string(rec.Status)),
		logger.String("taskID", rec.TaskID),
	)
	return nil
}

// drop swallows late writes and returns anything else.
func (p *pipeline) drop(ctx context.Context, log logger.Logger, err error) error {
	reason, ok := lifecycle.DropReason(err)
	if !ok {
		return err
	}
	metrics.RecordLateUpdateDropped(reason)
	log.Info(ctx, "dropping late evaluation update", logger.String("reason", reason), logger.Error(err))
	return nil
}

func isDrop(err error) bool {
	_, ok := lifecycle.DropReason(err)
	return ok
}
