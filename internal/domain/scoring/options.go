package scoring

import (
	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/pkg/logger"
)

// RateLimitRecorder is told about rule loads rejected by the limiter.
type RateLimitRecorder interface {
	RecordRateLimitHit(key string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter gates rule loads through l.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(e *Engine) {
		if l != nil {
			e.limiter = l
		}
	}
}

// WithRateLimitRecorder reports limited rule loads to r.
func WithRateLimitRecorder(r RateLimitRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
