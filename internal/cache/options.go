package cache

import (
	"time"

	"github.com/okian/leadpulse/internal/adapters/kv"
	"github.com/okian/leadpulse/pkg/logger"
)

// Recorder receives one record per cache read.
type Recorder interface {
	RecordQuery(key string, execMs float64, fromCache, hadError bool)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxEntries bounds the cache; the oldest entry is evicted first.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithKV persists persistent-tier entries so they survive restarts.
func WithKV(store kv.KV) Option {
	return func(c *Cache) {
		c.kv = store
	}
}

// WithRecorder reports every read to r.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		c.recorder = r
	}
}

// WithRetryBackoff sets the first retry delay and the delay cap.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *Cache) {
		if base > 0 && maxDelay >= base {
			c.retryBase = base
			c.retryCap = maxDelay
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}
