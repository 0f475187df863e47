package dedupe

import "time"

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*InMemoryDeduper)

// WithMaxSize bounds how many ids are remembered; the oldest is forgotten
// first. A size <= 0 keeps every id until it expires.
func WithMaxSize(maxSize int) Option {
	return func(d *InMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// WithTTL forgets ids recorded longer ago than ttl. Zero keeps them until evicted.
func WithTTL(ttl time.Duration) Option {
	return func(d *InMemoryDeduper) {
		if ttl >= 0 {
			d.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *InMemoryDeduper) {
		if now != nil {
			d.now = now
		}
	}
}
