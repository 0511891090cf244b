// Package scoring turns remote evaluation payloads into the 0-100 integer
// scores stored on recordings.
package scoring

import (
	"math"
	"math/rand"
	"sync"

	"github.com/okian/cadenza/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultRandomSeed = 42
	minScoreValue     = 0
	maxScoreValue     = 100
	// Values at or below this are treated as fractions of one.
	fractionCeiling = 1.0
)

// Normalize maps a raw remote score onto the 0-100 integer range.
// Fractions (v <= 1) are scaled by 100; larger values are taken as
// percentages. The result is rounded half away from zero and clamped.
func Normalize(v float64) int {
	if math.IsNaN(v) {
		return minScoreValue
	}
	if v <= fractionCeiling {
		v *= 100
	}
	n := math.Round(v)
	switch {
	case n < minScoreValue:
		return minScoreValue
	case n > maxScoreValue:
		return maxScoreValue
	}
	return int(n)
}

// Extract returns the best normalized score across the evaluation items.
// Items without a final score are skipped. Nil means nothing was scored.
func Extract(ev model.Evaluation) *int {
	var (
		best  float64
		found bool
	)
	for _, it := range ev.Results {
		if it.FinalScore == nil {
			continue
		}
		if !found || *it.FinalScore > best {
			best = *it.FinalScore
			found = true
		}
	}
	if !found {
		return nil
	}
	s := Normalize(best)
	return &s
}

// Option applies a configuration option to the FallbackScorer.
type Option func(*FallbackScorer)

// WithSeed seeds the random source for reproducible fallback scores.
func WithSeed(seed int64) Option {
	return func(f *FallbackScorer) {
		f.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // fallback scores are not security sensitive
	}
}

// FallbackScorer assigns placeholder scores to recordings the remote
// scorer never answered for.
type FallbackScorer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallbackScorer creates a fallback scorer with configuration options.
func NewFallbackScorer(opts ...Option) *FallbackScorer {
	f := &FallbackScorer{
		rng: rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Next draws a raw value in [0, 1] and returns it normalized.
func (f *FallbackScorer) Next() int {
	f.mu.Lock()
	raw := f.rng.Float64()
	f.mu.Unlock()
	return Normalize(raw)
}
