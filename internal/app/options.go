package service

import (
	"time"

	"github.com/okian/leadpulse/internal/adapters/kv"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/config"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig copies every setting the service uses from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		WithWorkerCount(cfg.WorkerCount)(s)
		WithQueueSize(cfg.QueueSize)(s)
		WithDatabase(cfg.DatabaseURL, cfg.RealtimeChannel)(s)
		WithRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)(s)
		WithRealtime(cfg.RealtimeEnabled, cfg.RealtimeReconnect)(s)
		WithNotifyURLs(cfg.NotifyURLs...)(s)
		WithDebounce(time.Duration(cfg.DebounceMS) * time.Millisecond)(s)
		WithInvalidationDelay(time.Duration(cfg.InvalidationDelayMS) * time.Millisecond)(s)
		WithRateLimit(cfg.RateLimitMaxRequests,
			time.Duration(cfg.RateLimitWindowMS)*time.Millisecond,
			time.Duration(cfg.RateLimitBlockMS)*time.Millisecond)(s)
		WithCacheMaxEntries(cfg.CacheMaxEntries)(s)
	}
}

// WithWorkerCount sets the number of tracking workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the tracking queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many client event ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDatabase selects the Postgres store. An empty url keeps the in-memory store.
func WithDatabase(url, channel string) Option {
	return func(s *Service) {
		s.databaseURL = url
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithRedis selects the Redis KV. An empty addr keeps the in-memory KV.
func WithRedis(addr, password string, db int) Option {
	return func(s *Service) {
		s.redisAddr = addr
		s.redisPassword = password
		s.redisDB = db
	}
}

// WithStore injects a store client, bypassing database selection.
func WithStore(c store.Client) Option {
	return func(s *Service) {
		s.injectedStore = c
	}
}

// WithKV injects a KV store, bypassing Redis selection.
func WithKV(store kv.KV) Option {
	return func(s *Service) {
		s.injectedKV = store
	}
}

// WithRealtime toggles the change subscription and its reconnect loop.
func WithRealtime(enabled, reconnect bool) Option {
	return func(s *Service) {
		s.realtime = enabled
		s.reconnect = reconnect
	}
}

// WithNotifyURLs adds shoutrrr destinations for lead notifications.
func WithNotifyURLs(urls ...string) Option {
	return func(s *Service) {
		s.notifyURLs = append(s.notifyURLs, urls...)
	}
}

// WithDebounce sets the per-session cooldown between tracked events.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithInvalidationDelay sets how long cache invalidations are coalesced.
func WithInvalidationDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.invalidationDelay = d
		}
	}
}

// WithRateLimit sets the per-visitor tracking limit.
func WithRateLimit(maxRequests int, window, block time.Duration) Option {
	return func(s *Service) {
		if maxRequests > 0 && window > 0 && block >= 0 {
			s.rateMax = maxRequests
			s.rateWindow = window
			s.rateBlock = block
		}
	}
}

// WithPruneSchedule sets the cron spec on which idle per-visitor rate limit
// windows are dropped.
func WithPruneSchedule(spec string) Option {
	return func(s *Service) {
		if spec != "" {
			s.pruneSpec = spec
		}
	}
}

// WithCacheMaxEntries bounds the query cache. Zero means unbounded.
func WithCacheMaxEntries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.cacheMaxEntries = n
		}
	}
}

// WithSeedRules sets the rules installed when the store holds none. A nil
// slice disables seeding.
func WithSeedRules(rules []model.ScoringRule) Option {
	return func(s *Service) {
		s.seedRules = rules
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
