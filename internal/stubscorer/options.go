package stubscorer

import (
	"time"

	"github.com/okian/cadenza/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLatencyRange sets how long a task stays unfinished.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Server) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSeed seeds the generator behind latencies, scores and failures.
func WithSeed(seed int64) Option {
	return func(s *Server) {
		s.seed = seed
	}
}

// WithFailureRate sets the share of tasks that end as failed.
func WithFailureRate(rate float64) Option {
	return func(s *Server) {
		if rate >= 0 && rate <= 1 {
			s.failureRate = rate
		}
	}
}

// WithTakes sets how many result items a completed task carries.
func WithTakes(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.takes = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
