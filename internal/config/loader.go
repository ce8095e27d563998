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
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CW_CONFIG is set
//  3. env (prefix CW_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("CW_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: CW_ADDR, CW_AUTHORITY_URL, ...
	// Map env keys like CW_BUFFER_CAPACITY -> buffer_capacity (flat keys).
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("CW_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "cw_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.AuthorityURL == "":
		return fmt.Errorf("%w: authority_url must not be empty", ErrInvalidConfig)
	case c.BufferCapacity <= 0:
		return fmt.Errorf("%w: buffer_capacity must be positive", ErrInvalidConfig)
	case c.PollIntervalSeconds <= 0:
		return fmt.Errorf("%w: poll_interval_seconds must be positive", ErrInvalidConfig)
	case c.RequestTimeoutSeconds <= 0:
		return fmt.Errorf("%w: request_timeout_seconds must be positive", ErrInvalidConfig)
	}
	return nil
}
