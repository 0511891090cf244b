package portal

import (
	"context"

	"github.com/okian/cadenza/internal/domain/model"
	"github.com/okian/cadenza/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithLogger sets a custom logger for the controller.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFallback sets the source of fallback scores used on close.
func WithFallback(next func() int) Option {
	return func(c *Controller) {
		if next != nil {
			c.fallback = next
		}
	}
}

// WithArtifacts sets where hard restart deletes media artifacts from.
func WithArtifacts(a Artifacts) Option {
	return func(c *Controller) {
		if a != nil {
			c.artifacts = a
		}
	}
}

// WithClaims sets the identity claims released by a hard restart.
func WithClaims(cl Claims) Option {
	return func(c *Controller) {
		if cl != nil {
			c.claims = cl
		}
	}
}

// WithDeleteConcurrency bounds concurrent artifact deletes on hard restart.
func WithDeleteConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.deleteConcurrency = n
		}
	}
}

// WithOnSoftRestart registers a hook that receives the reset recordings.
// It runs after the portal reopened, outside the controller lock.
func WithOnSoftRestart(fn func(ctx context.Context, reset []model.Recording)) Option {
	return func(c *Controller) {
		c.onSoftRestart = fn
	}
}
