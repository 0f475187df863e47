package monitor

import (
	"time"

	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/pkg/logger"
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source used for alert timestamps and the sweep.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLimiter replaces the limiter gating alert evaluation.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(m *Monitor) {
		if l != nil {
			m.limiter = l
		}
	}
}

// WithSlowQueryThreshold sets the execution time above which a slow_query alert is raised.
func WithSlowQueryThreshold(ms float64) Option {
	return func(m *Monitor) {
		if ms > 0 {
			m.slowMs = ms
		}
	}
}

// WithErrorRateThreshold sets the error rate percentage above which an error_spike alert is raised.
func WithErrorRateThreshold(pct float64) Option {
	return func(m *Monitor) {
		if pct > 0 {
			m.errorPct = pct
		}
	}
}

// WithSweep sets the cron spec of the alert sweep and the age past which alerts are dropped.
func WithSweep(spec string, maxAge time.Duration) Option {
	return func(m *Monitor) {
		if spec != "" {
			m.sweepSpec = spec
		}
		if maxAge > 0 {
			m.maxAge = maxAge
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}
