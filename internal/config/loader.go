package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if FUNNEL_CONFIG is set
//  3. env (prefix FUNNEL_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("FUNNEL_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: FUNNEL_COLLECT_URL, FUNNEL_QUEUE_CAPACITY, ...
	// Map env keys like FUNNEL_QUEUE_CAPACITY -> queue_capacity (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("FUNNEL_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "funnel_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Basic validation
	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("%w: queue_capacity must be positive", ErrInvalidConfig)
	}
	if cfg.MaxRetryAttempts <= 0 {
		return nil, fmt.Errorf("%w: max_retry_attempts must be positive", ErrInvalidConfig)
	}
	if cfg.RetryDelayMS < 0 {
		return nil, fmt.Errorf("%w: retry_delay_ms must not be negative", ErrInvalidConfig)
	}
	return &cfg, nil
}
