// Package cache is a tiered read-through cache with lazy expiry and
// substring invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/leadpulse/internal/adapters/kv"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	kvPrefix         = "cache:"
	defaultRetryBase = time.Second
	defaultRetryCap  = 30 * time.Second
)

type entry struct {
	value   any
	created time.Time
	ttl     time.Duration
	gc      time.Duration
}

// Cache holds entries in process memory.
type Cache struct {
	now        func() time.Time
	maxEntries int
	kv         kv.KV
	recorder   Recorder
	retryBase  time.Duration
	retryCap   time.Duration
	log        logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		now:       time.Now,
		retryBase: defaultRetryBase,
		retryCap:  defaultRetryCap,
		log:       logger.Get().Named("cache"),
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if it is still fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	age := c.now().Sub(e.created)
	if age >= e.gc {
		delete(c.entries, key)
		return nil, false
	}
	if age >= e.ttl {
		return nil, false
	}
	return e.value, true
}

// Get is the typed form of Cache.Get. A value of another type is a miss.
func Get[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set stores value with an explicit ttl. The entry is dropped once it is
// twice as old as ttl.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.put(key, value, ttl, 2*ttl)
}

// SetTier stores value with the ttl of tier.
func (c *Cache) SetTier(key string, value any, tier Tier) {
	c.put(key, value, tier.TTL(), tier.GCHorizon())
}

func (c *Cache) put(key string, value any, ttl, gc time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = &entry{value: value, created: c.now(), ttl: ttl, gc: gc}
	metrics.UpdateCacheEntries(len(c.entries))
}

// evictOldest removes the entry created first. Called with mu held.
func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if oldestKey == "" || e.created.Before(oldest) {
			oldestKey, oldest = k, e.created
		}
	}
	delete(c.entries, oldestKey)
}

// Invalidate removes every key containing pattern; an empty pattern clears
// the cache. It returns the number of entries removed.
func (c *Cache) Invalidate(pattern string) int {
	return c.InvalidateContext(context.Background(), pattern)
}

// InvalidateContext is Invalidate that also removes persisted copies whose
// key starts with pattern.
func (c *Cache) InvalidateContext(ctx context.Context, pattern string) int {
	c.mu.Lock()
	n := 0
	if pattern == "" {
		n = len(c.entries)
		c.entries = make(map[string]*entry)
	} else {
		for k := range c.entries {
			if strings.Contains(k, pattern) {
				delete(c.entries, k)
				n++
			}
		}
	}
	metrics.UpdateCacheEntries(len(c.entries))
	c.mu.Unlock()

	if c.kv != nil {
		if _, err := c.kv.DeleteMatching(ctx, kvPrefix+pattern); err != nil {
			c.log.Warn(ctx, "failed to drop persisted cache entries", logger.String("pattern", pattern), logger.Error(err))
		}
	}
	return n
}

// Len returns the number of entries held, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) record(key string, start time.Time, fromCache, hadError bool) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordQuery(key, float64(time.Since(start).Microseconds())/1000, fromCache, hadError)
}

// GetOrFetch returns the cached value for key or loads it with fetch.
//
// Persistent-tier misses are first looked up in the KV store. Failed fetches
// are retried with exponential backoff up to tier.Retries() times unless the
// error is not retryable (permission denied, rate limited, invalid).
// Concurrent misses for the same key share one fetch.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, tier Tier, fetch func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	if v, ok := Get[T](c, key); ok {
		metrics.RecordCacheHit(tier.String())
		c.record(key, start, true, false)
		return v, nil
	}
	if tier == TierPersistent {
		if v, ok := restore[T](ctx, c, key); ok {
			metrics.RecordCacheHit(tier.String())
			c.record(key, start, true, false)
			return v, nil
		}
	}
	metrics.RecordCacheMiss(tier.String())

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetchWithRetry(ctx, c, key, tier, fetch)
		if err != nil {
			return v, err
		}
		c.SetTier(key, v, tier)
		if tier == TierPersistent {
			persist(ctx, c, key, v)
		}
		return v, nil
	})
	c.record(key, start, false, err != nil)

	var zero T
	if res == nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, err
	}
	return v, err
}

func fetchWithRetry[T any](ctx context.Context, c *Cache, key string, tier Tier, fetch func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxInterval = c.retryCap
	b.Multiplier = 2

	attempt := 0
	op := func() (T, error) {
		attempt++
		if attempt > 1 {
			metrics.RecordCacheRetry(tier.String())
		}
		v, err := fetch(ctx)
		if err != nil && !errs.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(tier.Retries()+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Debug(ctx, "retrying cache fetch",
				logger.String("key", key), logger.Duration("in", next), logger.Error(err))
		}),
	)
	return v, err
}

func restore[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	if c.kv == nil {
		return v, false
	}
	b, err := c.kv.Get(ctx, kvPrefix+key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.log.Warn(ctx, "persisted cache read failed", logger.String("key", key), logger.Error(err))
		}
		return v, false
	}
	if err := json.Unmarshal(b, &v); err != nil {
		c.log.Warn(ctx, "persisted cache entry unreadable", logger.String("key", key), logger.Error(err))
		return v, false
	}
	c.SetTier(key, v, TierPersistent)
	return v, true
}

func persist(ctx context.Context, c *Cache, key string, v any) {
	if c.kv == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Warn(ctx, "cache entry not serializable", logger.String("key", key), logger.Error(err))
		return
	}
	if err := c.kv.Set(ctx, kvPrefix+key, b, TierPersistent.GCHorizon()); err != nil {
		c.log.Warn(ctx, "persisting cache entry failed", logger.String("key", key), logger.Error(err))
	}
}
