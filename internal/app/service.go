// Package service wires the lead pipeline together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/leadpulse/internal/adapters/kv"
	eventqueue "github.com/okian/leadpulse/internal/adapters/mq/queue"
	workerpool "github.com/okian/leadpulse/internal/adapters/mq/worker"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/adapters/store/memstore"
	"github.com/okian/leadpulse/internal/adapters/store/postgres"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/dedupe"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/identity"
	"github.com/okian/leadpulse/internal/domain/leads"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/monitor"
	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/internal/domain/realtime"
	"github.com/okian/leadpulse/internal/domain/scoring"
	"github.com/okian/leadpulse/internal/domain/tracking"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const (
	notificationBuffer = 50
	stopTimeout        = 30 * time.Second
	defaultPruneSpec   = "@every 1m"
)

// Service implements the API dependencies for the lead pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	client    store.Client
	kv        kv.KV
	identity  identity.Identity
	cache     *cache.Cache
	inv       *cache.Invalidator
	debounced *cache.DebouncedInvalidator
	monitor   *monitor.Monitor
	engine    *scoring.Engine
	tracker   *tracking.Tracker
	limiter   *ratelimit.Limiter
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	leads     *leads.Service
	notifier  *realtime.Notifier
	toasts    *realtime.MemorySink
	deduper   dedupe.Deduper

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	databaseURL       string
	channel           string
	redisAddr         string
	redisPassword     string
	redisDB           int
	realtime          bool
	reconnect         bool
	notifyURLs        []string
	debounce          time.Duration
	invalidationDelay time.Duration
	rateMax           int
	rateWindow        time.Duration
	rateBlock         time.Duration
	cacheMaxEntries   int
	pruneSpec         string
	seedRules         []model.ScoringRule
	injectedStore     store.Client
	injectedKV        kv.KV

	// State
	started      bool
	cancel       context.CancelFunc
	closers      []func() error
	backend      string
	housekeeping *cron.Cron

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       runtime.NumCPU() * 2,
		queueSize:         10_000,
		dedupeSize:        50_000,
		channel:           "lead_changes",
		realtime:          true,
		debounce:          5 * time.Second,
		invalidationDelay: 1500 * time.Millisecond,
		rateMax:           30,
		rateWindow:        time.Minute,
		rateBlock:         time.Minute,
		cacheMaxEntries:   1000,
		pruneSpec:         defaultPruneSpec,
		seedRules:         scoring.DefaultRules(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting lead pipeline...")

	if err := s.openStore(ctx); err != nil {
		s.closeAll()
		return err
	}
	if err := s.openKV(ctx); err != nil {
		s.closeAll()
		return err
	}

	id, err := identity.Load(ctx, s.kv)
	if err != nil {
		s.closeAll()
		return err
	}
	s.identity = id

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.monitor = monitor.New(monitor.WithLogger(s.logger.Named("monitor")))
	if err := s.monitor.Start(runCtx); err != nil {
		cancel()
		s.closeAll()
		return err
	}

	s.cache = cache.New(
		cache.WithKV(s.kv),
		cache.WithRecorder(s.monitor),
		cache.WithMaxEntries(s.cacheMaxEntries),
		cache.WithLogger(s.logger.Named("cache")),
	)
	s.inv = cache.NewInvalidator(s.cache)
	s.debounced = cache.NewDebouncedInvalidator(s.inv, s.invalidationDelay, s.logger.Named("invalidator"))

	s.engine = scoring.New(s.client, s.cache,
		scoring.WithRateLimitRecorder(s.monitor),
		scoring.WithLogger(s.logger.Named("scoring")),
	)
	s.seed(ctx)

	s.limiter = ratelimit.New(
		ratelimit.WithMaxRequests(s.rateMax),
		ratelimit.WithWindow(s.rateWindow),
		ratelimit.WithBlockDuration(s.rateBlock),
	)
	s.tracker = tracking.New(s.client, s.engine,
		tracking.WithCooldown(s.debounce),
		tracking.WithLimiter(s.limiter),
		tracking.WithRateLimitRecorder(s.monitor),
		tracking.WithInvalidator(s.debounced),
		tracking.WithLogger(s.logger.Named("tracking")),
	)

	if err := s.startHousekeeping(runCtx); err != nil {
		s.monitor.Stop()
		cancel()
		s.closeAll()
		return err
	}

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithPartitions(s.workerCount),
	)
	s.pool = workerpool.NewPool(s.queue, s.tracker, workerpool.WithLogger(s.logger.Named("worker")))
	s.pool.Start(runCtx)

	s.leads = leads.New(s.client, s.cache,
		leads.WithInvalidator(s.inv),
		leads.WithLogger(s.logger.Named("leads")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.toasts = realtime.NewMemorySink(notificationBuffer)

	if s.realtime {
		s.startNotifier(runCtx)
	}

	metrics.UpdateQueueCapacity(s.queueSize)
	metrics.UpdateWorkerCount(s.pool.Size())

	s.started = true
	s.logger.Info(ctx, "lead pipeline started",
		logger.String("store", s.backend),
		logger.String("visitorID", s.identity.VisitorID),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Bool("realtime", s.notifier != nil),
	)

	return nil
}

// startHousekeeping schedules pruning of idle per-visitor limiter windows.
func (s *Service) startHousekeeping(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.pruneSpec, func() { s.pruneLimiter(ctx) }); err != nil {
		return fmt.Errorf("schedule limiter prune %q: %w", s.pruneSpec, err)
	}
	c.Start()
	s.housekeeping = c
	return nil
}

func (s *Service) pruneLimiter(ctx context.Context) {
	if n := s.limiter.Prune(); n > 0 {
		s.logger.Debug(ctx, "pruned idle rate limit windows",
			logger.Int("removed", n),
			logger.Int("remaining", s.limiter.Len()),
		)
	}
}

func (s *Service) openStore(ctx context.Context) error {
	switch {
	case s.injectedStore != nil:
		s.client = s.injectedStore
		s.backend = "injected"
	case s.databaseURL != "":
		pg, err := postgres.Open(ctx, s.databaseURL,
			postgres.WithChannel(s.channel),
			postgres.WithLogger(s.logger.Named("postgres")),
		)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		s.client = pg
		s.backend = "postgres"
	default:
		s.client = memstore.New()
		s.backend = "memory"
	}
	s.client = store.Instrument(s.client)
	return nil
}

func (s *Service) openKV(ctx context.Context) error {
	switch {
	case s.injectedKV != nil:
		s.kv = s.injectedKV
	case s.redisAddr != "":
		r, err := kv.DialRedis(ctx, s.redisAddr, s.redisPassword, s.redisDB, kv.WithPrefix("leadpulse:"))
		if err != nil {
			return err
		}
		s.closers = append(s.closers, r.Close)
		s.kv = r
	default:
		s.kv = kv.NewMemory(time.Now)
	}
	return nil
}

func (s *Service) seed(ctx context.Context) {
	if len(s.seedRules) == 0 {
		return
	}
	n, err := scoring.Seed(ctx, s.client, s.seedRules)
	switch {
	case err == nil && n > 0:
		s.logger.Info(ctx, "installed default scoring rules", logger.Int("rules", n))
	case errs.IsPermissionDenied(err):
		s.logger.Warn(ctx, "not allowed to install scoring rules", logger.Error(err))
	case err != nil:
		s.logger.Error(ctx, "failed to install scoring rules", logger.Error(err))
	}
}

func (s *Service) startNotifier(ctx context.Context) {
	sinks := []realtime.Sink{realtime.NewLogSink(s.logger.Named("notify")), s.toasts}
	if len(s.notifyURLs) > 0 {
		sinks = append(sinks, realtime.NewShoutrrrSink(s.notifyURLs...))
	}
	s.notifier = realtime.New(s.client,
		realtime.WithSinks(sinks...),
		realtime.WithInvalidator(s.inv),
		realtime.WithReconnect(s.reconnect, 0, 0),
		realtime.WithLogger(s.logger.Named("realtime")),
	)
	if err := s.notifier.Start(ctx); err != nil {
		s.logger.Error(ctx, "realtime subscription failed", logger.Error(err))
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping lead pipeline...")

	if s.notifier != nil {
		if err := s.notifier.Stop(); err != nil {
			s.logger.Warn(ctx, "error closing realtime subscription", logger.Error(err))
		}
	}

	// Pool shutdown closes the queue and drains it.
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.debounced.Flush()
	<-s.housekeeping.Stop().Done()
	s.monitor.Stop()
	s.cancel()
	s.closeAll()

	s.started = false
	s.logger.Info(ctx, "lead pipeline stopped")
}

func (s *Service) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn(context.Background(), "error closing resource", logger.Error(err))
		}
	}
	s.closers = nil
}

// Enqueue validates req and submits it for asynchronous tracking.
//
// A request repeating an event id seen recently is accepted and dropped. A
// full queue is reported as an errs.KindRateLimited error.
func (s *Service) Enqueue(ctx context.Context, req model.TrackRequest) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}

	req.Normalize()
	if req.VisitorID == "" {
		req.VisitorID = s.identity.VisitorID
	}
	if req.SessionID == "" {
		req.SessionID = s.identity.SessionID
	}
	if err := tracking.Validate(req); err != nil {
		return err
	}
	if req.TS.IsZero() {
		req.TS = time.Now().UTC()
	}

	if req.EventID != "" && s.deduper.SeenAndRecord(ctx, req.EventID) {
		metrics.RecordEventDropped("duplicate")
		s.logger.Debug(ctx, "duplicate event detected, skipping",
			logger.String("eventID", req.EventID),
			logger.String("visitorID", req.VisitorID),
		)
		return nil
	}

	err := s.queue.Enqueue(ctx, req)
	if err == nil {
		metrics.UpdateQueueSize(s.queue.Len(ctx))
		return nil
	}

	if req.EventID != "" {
		s.deduper.Unrecord(ctx, req.EventID)
	}
	switch {
	case errors.Is(err, eventqueue.ErrFull):
		metrics.RecordQueueRejected("full")
		return errs.RateLimited("queue")
	case errors.Is(err, eventqueue.ErrClosed):
		metrics.RecordQueueRejected("closed")
		return ErrNotStarted
	default:
		metrics.RecordQueueRejected("canceled")
		return err
	}
}

// ListHot returns hot leads, highest score first.
func (s *Service) ListHot(ctx context.Context) ([]model.LeadScore, error) {
	l, err := s.leadsService()
	if err != nil {
		return nil, err
	}
	return l.ListHot(ctx), nil
}

// ListAll returns every lead, highest score first.
func (s *Service) ListAll(ctx context.Context) ([]model.LeadScore, error) {
	l, err := s.leadsService()
	if err != nil {
		return nil, err
	}
	return l.ListAll(ctx), nil
}

// Lead returns the lead of visitorID.
func (s *Service) Lead(ctx context.Context, visitorID string) (model.LeadScore, error) {
	l, err := s.leadsService()
	if err != nil {
		return model.LeadScore{}, err
	}
	return l.Get(ctx, visitorID)
}

// Stats returns the lead dashboard aggregates.
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	l, err := s.leadsService()
	if err != nil {
		return model.Stats{}, err
	}
	return l.Stats(ctx), nil
}

// UpdateLeadInfo applies a partial update to the lead of visitorID.
func (s *Service) UpdateLeadInfo(ctx context.Context, visitorID string, u model.LeadUpdate) (model.LeadScore, error) {
	l, err := s.leadsService()
	if err != nil {
		return model.LeadScore{}, err
	}
	return l.Update(ctx, visitorID, u)
}

// Alerts returns recent lead alerts, newest first.
func (s *Service) Alerts(ctx context.Context, unreadOnly bool) ([]model.Alert, error) {
	l, err := s.leadsService()
	if err != nil {
		return nil, err
	}
	return l.ListAlerts(ctx, unreadOnly), nil
}

// MarkAlertRead marks alert id as read.
func (s *Service) MarkAlertRead(ctx context.Context, id string) error {
	l, err := s.leadsService()
	if err != nil {
		return err
	}
	return l.MarkAlertRead(ctx, id)
}

func (s *Service) leadsService() (*leads.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.leads, nil
}

// PerformanceMetrics returns the query monitor snapshot.
func (s *Service) PerformanceMetrics() monitor.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.monitor == nil {
		return monitor.Snapshot{}
	}
	return s.monitor.Metrics()
}

// PerformanceAlerts returns the monitor's recent alerts, newest first.
func (s *Service) PerformanceAlerts() []monitor.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.monitor == nil {
		return nil
	}
	return s.monitor.Alerts()
}

// RecentUpdates returns the realtime updates seen lately, newest first.
func (s *Service) RecentUpdates() []model.RealtimeUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.notifier == nil {
		return []model.RealtimeUpdate{}
	}
	return s.notifier.Recent()
}

// Notifications returns the notifications raised lately, newest first.
func (s *Service) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.toasts == nil {
		return []model.Notification{}
	}
	return s.toasts.Notifications()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(context.Background())
	stats["store"] = s.backend
	stats["visitorID"] = s.identity.VisitorID
	stats["sessionID"] = s.identity.SessionID
	stats["queueLength"] = queueLen
	stats["processed"] = s.pool.Processed()
	stats["dropped"] = s.pool.Dropped()
	stats["failed"] = s.pool.Failed()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["cacheEntries"] = s.cache.Len()
	stats["pendingInvalidations"] = s.debounced.Pending()
	stats["limiterKeys"] = s.limiter.Len()
	realtimeState := "disabled"
	if s.notifier != nil {
		realtimeState = s.notifier.State().String()
	}
	stats["realtime"] = realtimeState

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateCacheEntries(s.cache.Len())

	return stats
}
