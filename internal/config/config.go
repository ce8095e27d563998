// Package config defines service configuration structures and loading hooks.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// AuthorityURL is the base URL of the remote combat authority.
	AuthorityURL string `koanf:"authority_url"`

	// PushURL is the authority's WebSocket push stream endpoint.
	// Empty disables the push channel; the poll cycle still runs.
	PushURL string `koanf:"push_url"`

	// BufferCapacity bounds the in-memory event window.
	BufferCapacity int `koanf:"buffer_capacity"`

	// PollIntervalSeconds sets the poll cadence against the authority.
	PollIntervalSeconds int `koanf:"poll_interval_seconds"`

	// RequestTimeoutSeconds bounds every authority call, poll and dispatch.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":8090",
		AuthorityURL:          "http://localhost:8080/api/v1/admin/combat",
		PushURL:               "",
		BufferCapacity:        100,
		PollIntervalSeconds:   30,
		RequestTimeoutSeconds: 10,
	}
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the authority call timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
