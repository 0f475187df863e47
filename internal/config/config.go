// Package config defines service configuration and its defaults.
package config

import (
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, adds a rotating file sink next to stdout.
	LogFile string `koanf:"log_file"`

	// LogJSON switches the log handler to JSON.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory tracking queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of tracking workers (one per queue partition).
	WorkerCount int `koanf:"worker_count"`

	// DatabaseURL selects the Postgres store. Empty runs the in-memory store.
	DatabaseURL string `koanf:"database_url"`

	// RedisAddr selects the Redis KV. Empty runs the in-memory KV.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// RealtimeEnabled turns the change subscription on.
	RealtimeEnabled bool `koanf:"realtime_enabled"`

	// RealtimeChannel is the NOTIFY channel the store publishes changes on.
	RealtimeChannel string `koanf:"realtime_channel"`

	// RealtimeReconnect resubscribes with backoff after a channel error.
	RealtimeReconnect bool `koanf:"realtime_reconnect"`

	// NotifyURLs are shoutrrr service URLs receiving hot-lead notifications.
	NotifyURLs []string `koanf:"notify_urls"`

	// DebounceMS is the per-session cooldown between tracked events.
	DebounceMS int `koanf:"debounce_ms"`

	// InvalidationDelayMS coalesces cache invalidations after writes.
	InvalidationDelayMS int `koanf:"invalidation_delay_ms"`

	// Per-visitor tracking limits.
	RateLimitMaxRequests int `koanf:"rate_limit_max_requests"`
	RateLimitWindowMS    int `koanf:"rate_limit_window_ms"`
	RateLimitBlockMS     int `koanf:"rate_limit_block_ms"`

	// CacheMaxEntries bounds the query cache. Zero means unbounded.
	CacheMaxEntries int `koanf:"cache_max_entries"`

	// CORSOrigins lists origins allowed by the HTTP API.
	CORSOrigins []string `koanf:"cors_origins"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		RealtimeEnabled:      true,
		RealtimeChannel:      "lead_changes",
		DebounceMS:           5000,
		InvalidationDelayMS:  1500,
		RateLimitMaxRequests: 30,
		RateLimitWindowMS:    60_000,
		RateLimitBlockMS:     60_000,
		CacheMaxEntries:      1000,
		CORSOrigins:          []string{"*"},
	}
}

// Validate reports configuration the service cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.RateLimitMaxRequests <= 0:
		return invalid("rate_limit_max_requests must be positive")
	case c.RateLimitWindowMS <= 0:
		return invalid("rate_limit_window_ms must be positive")
	case c.RateLimitBlockMS < 0:
		return invalid("rate_limit_block_ms must not be negative")
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive")
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive")
	}
	return nil
}
