package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
)

// Cache keys read through the cache. Keys with a trailing colon are prefixes
// of per-entity keys.
const (
	KeyHotLeads     = "leads:hot"
	KeyAllLeads     = "leads:all"
	KeyLeadStats    = "leads:stats"
	KeyLeadPrefix   = "leads:visitor:"
	KeyUnreadAlerts = "alerts:unread"
	KeyAllAlerts    = "alerts:all"
	KeyActiveRules  = "rules:active"
)

// Logical writes understood by the Invalidator.
const (
	WriteLeads  = "leads"
	WriteEvents = "events"
	WriteAlerts = "alerts"
	WriteRules  = "rules"
)

// dependents lists every cache key affected by a logical write. A write not
// listed here invalidates only its literal key.
var dependents = map[string][]string{ //nolint:gochecknoglobals // static dependency table
	WriteLeads:  {KeyHotLeads, KeyAllLeads, KeyLeadStats, KeyLeadPrefix},
	WriteEvents: {KeyHotLeads, KeyAllLeads, KeyLeadStats, KeyLeadPrefix, KeyUnreadAlerts, KeyAllAlerts},
	WriteAlerts: {KeyUnreadAlerts, KeyAllAlerts},
	WriteRules:  {KeyActiveRules},
}

// Dependents returns the keys a write invalidates.
func Dependents(write string) []string {
	if keys, ok := dependents[write]; ok {
		return append([]string(nil), keys...)
	}
	return []string{write}
}

// Invalidator maps logical writes to cache invalidations.
type Invalidator struct {
	cache *Cache
}

// NewInvalidator creates an Invalidator over c.
func NewInvalidator(c *Cache) *Invalidator {
	return &Invalidator{cache: c}
}

// Invalidate drops every key depending on write and returns the number of
// entries removed.
func (i *Invalidator) Invalidate(ctx context.Context, write string) int {
	n := 0
	for _, key := range Dependents(write) {
		n += i.cache.InvalidateContext(ctx, key)
	}
	metrics.RecordCacheInvalidation(write)
	return n
}

// DebouncedInvalidator coalesces writes and invalidates once after delay.
// The delay runs from the first write of a batch, so a steady stream of
// writes still flushes every delay.
type DebouncedInvalidator struct {
	inv   *Invalidator
	delay time.Duration
	log   logger.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	flushes int
}

// NewDebouncedInvalidator creates a DebouncedInvalidator.
func NewDebouncedInvalidator(inv *Invalidator, delay time.Duration, log logger.Logger) *DebouncedInvalidator {
	if log == nil {
		log = logger.Get().Named("invalidator")
	}
	return &DebouncedInvalidator{
		inv:     inv,
		delay:   delay,
		log:     log,
		pending: make(map[string]struct{}),
	}
}

// Schedule queues write for the next flush.
func (d *DebouncedInvalidator) Schedule(write string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[write] = struct{}{}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.Flush)
	}
}

// Flush invalidates every pending write now.
func (d *DebouncedInvalidator) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	writes := make([]string, 0, len(d.pending))
	for w := range d.pending {
		writes = append(writes, w)
	}
	d.pending = make(map[string]struct{})
	if len(writes) > 0 {
		d.flushes++
	}
	d.mu.Unlock()

	sort.Strings(writes)
	ctx := context.Background()
	for _, w := range writes {
		n := d.inv.Invalidate(ctx, w)
		d.log.Debug(ctx, "cache invalidated", logger.String("write", w), logger.Int("entries", n))
	}
}

// Pending returns the writes waiting for the next flush.
func (d *DebouncedInvalidator) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flushes returns how many non-empty flushes have run.
func (d *DebouncedInvalidator) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}
