package tracking

import (
	"time"

	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/pkg/logger"
)

// Scheduler queues a logical write for cache invalidation.
type Scheduler interface {
	Schedule(write string)
}

// RateLimitRecorder is told about tracking calls rejected by the limiter.
type RateLimitRecorder interface {
	RecordRateLimitHit(key string)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCooldown sets the debounce cooldown. Zero disables debouncing.
func WithCooldown(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.cooldown = d
		}
	}
}

// WithLimiter sets the per-visitor rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(t *Tracker) {
		if l != nil {
			t.limiter = l
		}
	}
}

// WithRateLimitRecorder reports limited calls to r.
func WithRateLimitRecorder(r RateLimitRecorder) Option {
	return func(t *Tracker) {
		t.recorder = r
	}
}

// WithInvalidator schedules cache invalidation after every persisted event.
func WithInvalidator(s Scheduler) Option {
	return func(t *Tracker) {
		t.invalidator = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIDGenerator overrides how event ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(t *Tracker) {
		if gen != nil {
			t.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}
