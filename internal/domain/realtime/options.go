package realtime

import (
	"time"

	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/pkg/logger"
)

// Option configures a Notifier.
type Option func(*Notifier)

// WithSinks adds notification sinks.
func WithSinks(sinks ...Sink) Option {
	return func(n *Notifier) {
		for _, s := range sinks {
			if s != nil {
				n.sinks = append(n.sinks, s)
			}
		}
	}
}

// WithInvalidator drops cached aggregates affected by incoming changes.
func WithInvalidator(inv *cache.Invalidator) Option {
	return func(n *Notifier) {
		n.inv = inv
	}
}

// WithReconnect resubscribes after a channel error, backing off from base
// up to maxDelay between attempts.
func WithReconnect(enabled bool, base, maxDelay time.Duration) Option {
	return func(n *Notifier) {
		n.reconnect = enabled
		if base > 0 && maxDelay >= base {
			n.retryBase = base
			n.retryCap = maxDelay
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.log = l
		}
	}
}
