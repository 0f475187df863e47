// Package dedupe remembers client-supplied event ids so retried submissions
// are tracked once.
package dedupe

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMaxSize = 50_000
	defaultTTL     = 10 * time.Minute
)

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord reports whether id was seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so a submission that was refused can be retried.
	Unrecord(ctx context.Context, id string)
	Size() int64
}

type record struct {
	id string
	at time.Time
}

// InMemoryDeduper keeps ids in arrival order with optional expiry.
type InMemoryDeduper struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	seen  map[string]time.Time
	order []record // oldest first; may hold ids already unrecorded
}

// NewInMemoryDeduper creates a deduper.
func NewInMemoryDeduper(opts ...Option) *InMemoryDeduper {
	d := &InMemoryDeduper{
		maxSize: defaultMaxSize,
		ttl:     defaultTTL,
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if _, ok := d.seen[id]; ok {
		return true
	}
	for d.maxSize > 0 && len(d.seen) >= d.maxSize && len(d.order) > 0 {
		d.dropOldest()
	}
	d.seen[id] = now
	d.order = append(d.order, record{id: id, at: now})
	return false
}

func (d *InMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *InMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// expire drops records older than the ttl. Called with mu held.
func (d *InMemoryDeduper) expire(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	cutoff := now.Add(-d.ttl)
	for len(d.order) > 0 && !d.order[0].at.After(cutoff) {
		d.dropOldest()
	}
}

// dropOldest removes the head of order. A stale head, whose id was
// unrecorded or recorded again later, leaves seen untouched.
func (d *InMemoryDeduper) dropOldest() {
	head := d.order[0]
	d.order[0] = record{}
	d.order = d.order[1:]
	if at, ok := d.seen[head.id]; ok && at.Equal(head.at) {
		delete(d.seen, head.id)
	}
}
