package scorer

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/cadenza/pkg/logger"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for both calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each individual HTTP call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUploadPolicy sets the upload retry budget.
func WithUploadPolicy(p UploadPolicy) Option {
	return func(c *Client) {
		if p.Attempts > 0 {
			c.upload.Attempts = p.Attempts
		}
		if p.BaseDelay >= 0 {
			c.upload.BaseDelay = p.BaseDelay
		}
	}
}

// WithPollPolicy sets the poll budget and classifiers. Zero fields keep
// their defaults.
func WithPollPolicy(p PollPolicy) Option {
	return func(c *Client) {
		c.poll = p.withDefaults()
	}
}

// WithSleep replaces how the client waits between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
