package ratelimit

import "time"

// Option configures a Limiter.
type Option func(*Limiter)

// WithMaxRequests sets how many calls a key may make per window.
func WithMaxRequests(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxRequests = n
		}
	}
}

// WithWindow sets the fixed window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithBlockDuration sets how long a key stays blocked after exceeding the window.
func WithBlockDuration(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.block = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}
