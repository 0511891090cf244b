package stubscorer

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STUB_SCORER_"

// Config configures the stub scorer process.
type Config struct {
	Addr         string  `koanf:"addr"`
	LogLevel     string  `koanf:"log_level"`
	MinLatencyMS int     `koanf:"min_latency_ms"`
	MaxLatencyMS int     `koanf:"max_latency_ms"`
	FailureRate  float64 `koanf:"failure_rate"`
	Takes        int     `koanf:"takes"`
	Seed         int64   `koanf:"seed"`
}

// LoadConfig reads STUB_SCORER_* env vars over the defaults.
func LoadConfig() (*Config, error) {
	cfg := Config{
		Addr:         ":9090",
		LogLevel:     "info",
		MinLatencyMS: int(defaultMinLatency / time.Millisecond),
		MaxLatencyMS: int(defaultMaxLatency / time.Millisecond),
		Takes:        defaultTakes,
		Seed:         defaultSeed,
	}

	k := koanf.New(".")
	provider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrInvalidConfig, err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch {
	case cfg.Addr == "":
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case cfg.MinLatencyMS < 0 || cfg.MaxLatencyMS < cfg.MinLatencyMS:
		return nil, fmt.Errorf("%w: latency range %d..%d ms", ErrInvalidConfig, cfg.MinLatencyMS, cfg.MaxLatencyMS)
	case cfg.FailureRate < 0 || cfg.FailureRate > 1:
		return nil, fmt.Errorf("%w: failure_rate must be within [0,1]", ErrInvalidConfig)
	}
	return &cfg, nil
}

// Options converts the config into server options.
func (c *Config) Options() []Option {
	return []Option{
		WithLatencyRange(time.Duration(c.MinLatencyMS)*time.Millisecond, time.Duration(c.MaxLatencyMS)*time.Millisecond),
		WithFailureRate(c.FailureRate),
		WithTakes(c.Takes),
		WithSeed(c.Seed),
	}
}
