package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CADENZA_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CADENZA_CONFIG is set
//  3. env (prefix CADENZA_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Environment variables: CADENZA_ADDR, CADENZA_QUEUE_SIZE, ...
	// Flat keys keep their underscores; the MINIO_ group maps to the nested
	// minio.* keys, e.g. CADENZA_MINIO_ACCESS_KEY -> minio.access_key.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if rest, ok := strings.CutPrefix(s, "minio_"); ok {
			return "minio." + rest
		}
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(ctx); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.UploadAttempts < 1:
		return fmt.Errorf("%w: upload_attempts must be at least 1", ErrInvalidConfig)
	case c.PollAttempts < 1:
		return fmt.Errorf("%w: poll_attempts must be at least 1", ErrInvalidConfig)
	case c.UploadBaseDelayMS < 0 || c.PollIntervalMS < 0:
		return fmt.Errorf("%w: retry delays must not be negative", ErrInvalidConfig)
	case strings.TrimSpace(c.NotReadySignature) == "":
		return fmt.Errorf("%w: not_ready_signature must not be blank", ErrInvalidConfig)
	}

	if c.ScorerURL != "" {
		u, err := url.Parse(c.ScorerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: scorer_url %q is not an absolute URL", ErrInvalidConfig, c.ScorerURL)
		}
	}

	switch c.StorageBackend {
	case StorageFS:
		if c.MediaDir == "" {
			return fmt.Errorf("%w: media_dir must not be empty", ErrInvalidConfig)
		}
	case StorageMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("%w: minio endpoint and bucket are required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}
	return nil
}
