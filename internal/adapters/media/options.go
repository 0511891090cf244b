package media

import (
	"github.com/okian/cadenza/pkg/logger"
)

// Option applies a configuration option to the FFmpegNormalizer.
type Option func(*FFmpegNormalizer)

// WithFFmpegPath sets the ffmpeg binary.
func WithFFmpegPath(p string) Option {
	return func(n *FFmpegNormalizer) {
		if p != "" {
			n.ffmpegPath = p
		}
	}
}

// WithEncoding sets the canonical codec and container format.
func WithEncoding(codec, format string) Option {
	return func(n *FFmpegNormalizer) {
		if codec != "" {
			n.codec = codec
		}
		if format != "" {
			n.format = format
		}
	}
}

// WithSampleRate sets the canonical sample rate in Hz.
func WithSampleRate(hz int) Option {
	return func(n *FFmpegNormalizer) {
		if hz > 0 {
			n.sampleRate = hz
		}
	}
}

// WithRunner replaces how ffmpeg is executed.
func WithRunner(r Runner) Option {
	return func(n *FFmpegNormalizer) {
		if r != nil {
			n.run = r
		}
	}
}

// WithLogger sets a custom logger for the normalizer.
func WithLogger(l logger.Logger) Option {
	return func(n *FFmpegNormalizer) {
		if l != nil {
			n.logger = l
		}
	}
}
