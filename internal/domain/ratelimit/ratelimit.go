// Package ratelimit bounds the call rate of keyed operations.
//
// The counter is a fixed window: each key opens a window on its first call and
// counts calls until the window elapses. A key that exceeds the window is
// blocked for the block duration regardless of window state. Calls straddling
// a window boundary can admit up to twice maxRequests.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxRequests = 10
	defaultWindow      = time.Minute
	defaultBlock       = time.Minute
)

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window rate limiter safe for concurrent use.
type Limiter struct {
	maxRequests int
	window      time.Duration
	block       time.Duration
	now         func() time.Time

	mu           sync.Mutex
	windows      map[string]*window
	blockedUntil map[string]time.Time
}

// New creates a Limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		maxRequests:  defaultMaxRequests,
		window:       defaultWindow,
		block:        defaultBlock,
		now:          time.Now,
		windows:      make(map[string]*window),
		blockedUntil: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsLimited records a call for key and reports whether it must be rejected.
func (l *Limiter) IsLimited(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.blockedUntil[key]; ok {
		if now.Before(until) {
			return true
		}
		delete(l.blockedUntil, key)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.windows[key] = &window{start: now, count: 1}
		return false
	}
	if w.count < l.maxRequests {
		w.count++
		return false
	}

	l.blockedUntil[key] = now.Add(l.block)
	return true
}

// Execute runs op unless key is limited. The bool is false when the call was
// short-circuited; that case never produces an error. Errors from op are
// returned as is.
func Execute[T any](ctx context.Context, l *Limiter, key string, op func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if l.IsLimited(key) {
		return zero, false, nil
	}
	v, err := op(ctx)
	return v, true, err
}

// Remaining reports how many calls key may still make in its current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.blockedUntil[key]; ok && now.Before(until) {
		return 0
	}
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		return l.maxRequests
	}
	return max(l.maxRequests-w.count, 0)
}

// Reset forgets the given keys, or every key when none is given.
func (l *Limiter) Reset(keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(keys) == 0 {
		l.windows = make(map[string]*window)
		l.blockedUntil = make(map[string]time.Time)
		return
	}
	for _, k := range keys {
		delete(l.windows, k)
		delete(l.blockedUntil, k)
	}
}

// Len returns the number of keys with live bookkeeping.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Prune drops keys whose window and block have both elapsed. It returns the
// number of keys removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, w := range l.windows {
		if now.Sub(w.start) < l.window {
			continue
		}
		if until, ok := l.blockedUntil[k]; ok && now.Before(until) {
			continue
		}
		delete(l.windows, k)
		delete(l.blockedUntil, k)
		removed++
	}
	return removed
}
