// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and CADENZA_* env vars.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
)

// Storage backends for media artifacts.
const (
	StorageFS    = "fs"
	StorageMinio = "minio"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MaxUploadBytes caps the multipart body accepted by POST /recordings.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// JobQueueSize bounds the in-memory evaluation queue.
	JobQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of evaluation workers.
	WorkerCount int `koanf:"worker_count"`

	// ScorerURL is the base URL of the remote scorer. Empty enables demo mode:
	// nothing is sent for evaluation and scores come from the portal close fallback.
	ScorerURL string `koanf:"scorer_url"`

	// ScorerTimeoutMS bounds each individual HTTP call to the scorer.
	ScorerTimeoutMS int `koanf:"scorer_timeout_ms"`

	// UploadAttempts and UploadBaseDelayMS shape the upload retry policy
	// (delay before attempt n+1 is base * n).
	UploadAttempts    int `koanf:"upload_attempts"`
	UploadBaseDelayMS int `koanf:"upload_base_delay_ms"`

	// PollAttempts and PollIntervalMS bound how long a task is polled.
	PollAttempts   int `koanf:"poll_attempts"`
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// NotReadySignature is the body fragment the scorer uses for "not ready yet".
	NotReadySignature string `koanf:"not_ready_signature"`

	// RescoreOnRestart re-enqueues every recording after a soft restart.
	RescoreOnRestart bool `koanf:"rescore_on_restart"`

	// FallbackSeed seeds the fallback scorer used on portal close.
	FallbackSeed int64 `koanf:"fallback_seed"`

	// FFmpegPath points at the ffmpeg binary used for canonical conversion.
	FFmpegPath string `koanf:"ffmpeg_path"`

	// CanonicalCodec and CanonicalFormat select the scorer's expected encoding.
	CanonicalCodec  string `koanf:"canonical_codec"`
	CanonicalFormat string `koanf:"canonical_format"`

	// StorageBackend selects where media artifacts live: fs or minio.
	StorageBackend string `koanf:"storage_backend"`

	// MediaDir is the root directory of the fs backend.
	MediaDir string `koanf:"media_dir"`

	// Minio holds the S3-compatible backend settings.
	Minio MinioConfig `koanf:"minio"`
}

// MinioConfig configures the object storage backend.
type MinioConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		MaxUploadBytes:    25 << 20,
		JobQueueSize:      1_000,
		WorkerCount:       runtime.NumCPU() * 4,
		ScorerURL:         "",
		ScorerTimeoutMS:   30_000,
		UploadAttempts:    3,
		UploadBaseDelayMS: 1_000,
		PollAttempts:      120,
		PollIntervalMS:    2_000,
		NotReadySignature: "evaluation not completed",
		RescoreOnRestart:  false,
		FallbackSeed:      42,
		FFmpegPath:        "ffmpeg",
		CanonicalCodec:    "pcm_s16le",
		CanonicalFormat:   "wav",
		StorageBackend:    StorageFS,
		MediaDir:          "data/media",
		Minio: MinioConfig{
			Bucket: "cadenza",
			Region: "us-east-1",
		},
	}
	return c
}

// DemoMode reports whether no remote scorer is configured.
func (c *Config) DemoMode() bool {
	return c.ScorerURL == ""
}
