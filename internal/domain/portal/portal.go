// Package portal controls whether new submissions are admitted and applies
// the admin close and restart operations.
package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/internal/domain/scoring"
	"github.com/okian/cadenza/pkg/logger"
	"github.com/okian/cadenza/pkg/metrics"
)

// Mode selects how a restart treats existing recordings.
type Mode string

// Restart modes.
const (
	ModeSoft Mode = "soft"
	ModeHard Mode = "hard"
)

// ParseMode validates a restart mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSoft, ModeHard:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

const defaultDeleteConcurrency = 8

// Recordings is the lifecycle surface the controller drives.
type Recordings interface {
	AssignFallback(ctx context.Context, next func() int) (int, error)
	ResetAll(ctx context.Context) ([]model.Recording, error)
	DeleteAll(ctx context.Context) []model.Recording
}

// Artifacts deletes stored media.
type Artifacts interface {
	Delete(ctx context.Context, ref string) error
}

// Claims releases identity ownership.
type Claims interface {
	Reset(ctx context.Context)
}

// Controller owns the process-wide portal flag. Close and Restart hold the
// write lock for their whole run, so no admission interleaves with them.
type Controller struct {
	mu     sync.RWMutex
	isOpen bool

	recordings        Recordings
	artifacts         Artifacts
	claims            Claims
	fallback          func() int
	deleteConcurrency int
	onSoftRestart     func(ctx context.Context, reset []model.Recording)

	logger logger.Logger
}

// NewController creates an open portal over recordings.
func NewController(recordings Recordings, opts ...Option) *Controller {
	c := &Controller{
		isOpen:            true,
		recordings:        recordings,
		fallback:          scoring.NewFallbackScorer().Next,
		deleteConcurrency: defaultDeleteConcurrency,
		logger:            logger.Get().Named("portal"),
	}
	for _, opt := range opts {
		opt(c)
	}
	metrics.UpdatePortalOpen(true)
	return c
}

// Status returns the current portal status.
func (c *Controller) Status() model.PortalStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.PortalStatus{IsOpen: c.isOpen}
}

// Admit runs fn while holding the portal open. Returns ErrClosed without
// calling fn if the portal is closed.
func (c *Controller) Admit(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.isOpen {
		return ErrClosed
	}
	return fn(ctx)
}

// Open reopens the portal.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setOpen(ctx, true)
}

// Close assigns fallback scores to every unscored recording and closes the
// portal.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.recordings.AssignFallback(ctx, c.fallback)
	metrics.RecordFallbackScores(n)
	if err != nil {
		return fmt.Errorf("close portal: %w", err)
	}
	c.setOpen(ctx, false)
	return nil
}

// Restart reopens the portal and resets (soft) or deletes (hard) every
// recording.
func (c *Controller) Restart(ctx context.Context, mode Mode) error {
	switch mode {
	case ModeSoft:
		reset, err := c.softRestart(ctx)
		if err != nil {
			return err
		}
		if c.onSoftRestart != nil {
			c.onSoftRestart(ctx, reset)
		}
	case ModeHard:
		c.hardRestart(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	metrics.RecordPortalRestart(string(mode))
	return nil
}

func (c *Controller) softRestart(ctx context.Context) ([]model.Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reset, err := c.recordings.ResetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("soft restart: %w", err)
	}
	c.setOpen(ctx, true)
	return reset, nil
}

func (c *Controller) hardRestart(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.recordings.DeleteAll(ctx)
	if c.claims != nil {
		c.claims.Reset(ctx)
	}
	c.deleteArtifacts(ctx, removed)
	c.setOpen(ctx, true)
	c.logger.Info(ctx, "hard restart removed recordings", logger.Int("count", len(removed)))
}

// deleteArtifacts removes media for the given recordings. Failures are
// logged and counted; the roster is already empty either way.
func (c *Controller) deleteArtifacts(ctx context.Context, removed []model.Recording) {
	if c.artifacts == nil {
		return
	}
	var g errgroup.Group
	g.SetLimit(c.deleteConcurrency)

	seen := make(map[string]struct{})
	for _, r := range removed {
		for _, ref := range []string{r.MediaRef, r.OriginalRef} {
			if ref == "" {
				continue
			}
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			g.Go(func() error {
				if err := c.artifacts.Delete(ctx, ref); err != nil {
					metrics.RecordArtifactDeleteError()
					return fmt.Errorf("delete %s: %w", ref, err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn(ctx, "some media artifacts were not deleted", logger.Error(err))
	}
}

// setOpen must be called with mu held.
func (c *Controller) setOpen(ctx context.Context, open bool) {
	if c.isOpen != open {
		c.logger.Info(ctx, "portal state changed", logger.Bool("isOpen", open))
	}
	c.isOpen = open
	metrics.UpdatePortalOpen(open)
}
