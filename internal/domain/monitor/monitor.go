// Package monitor keeps rolling query statistics and raises advisory
// performance alerts.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
	"github.com/robfig/cron/v3"
)

const (
	sampleSize = 100
	alertLimit = 20

	defaultSlowMs    = 2000
	defaultErrorPct  = 10
	defaultSweepSpec = "@every 5m"
	defaultMaxAge    = time.Hour

	alertGateKey = "monitor:alerts"
)

// AlertType names the rule that raised an Alert.
type AlertType string

const (
	AlertSlowQuery  AlertType = "slow_query"
	AlertErrorSpike AlertType = "error_spike"
)

// Alert is an advisory performance alert.
type Alert struct {
	Type    AlertType `json:"type"`
	Key     string    `json:"key"`
	Message string    `json:"message"`
	Value   float64   `json:"value"`
	At      time.Time `json:"at"`
}

// Snapshot is a point-in-time view of the collected statistics.
type Snapshot struct {
	TotalQueries  int64   `json:"total_queries"`
	CacheHits     int64   `json:"cache_hits"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	Errors        int64   `json:"errors"`
	ErrorRate     float64 `json:"error_rate"`
	AverageMs     float64 `json:"average_ms"`
	SlowQueries   int64   `json:"slow_queries"`
	RateLimitHits int64   `json:"rate_limit_hits"`
	Samples       int     `json:"samples"`
}

// Monitor collects query statistics. It is safe for concurrent use.
type Monitor struct {
	now       func() time.Time
	limiter   *ratelimit.Limiter
	slowMs    float64
	errorPct  float64
	sweepSpec string
	maxAge    time.Duration
	log       logger.Logger

	mu            sync.Mutex
	samples       [sampleSize]float64
	next          int
	filled        int
	total         int64
	hits          int64
	errors        int64
	slow          int64
	rateLimitHits int64
	alerts        []Alert

	cron *cron.Cron
}

// New creates a Monitor. Alert evaluation is limited to 60 checks a minute
// unless WithLimiter says otherwise.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		now:       time.Now,
		slowMs:    defaultSlowMs,
		errorPct:  defaultErrorPct,
		sweepSpec: defaultSweepSpec,
		maxAge:    defaultMaxAge,
		log:       logger.Get().Named("monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.limiter == nil {
		m.limiter = ratelimit.New(
			ratelimit.WithMaxRequests(60),
			ratelimit.WithWindow(time.Minute),
			ratelimit.WithBlockDuration(0),
			ratelimit.WithClock(m.now),
		)
	}
	return m
}

// Start schedules the periodic alert sweep.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(m.sweepSpec, func() { m.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule alert sweep %q: %w", m.sweepSpec, err)
	}
	c.Start()
	m.cron = c
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RecordQuery records one cache read or store query.
func (m *Monitor) RecordQuery(key string, execMs float64, fromCache, hadError bool) {
	m.mu.Lock()
	m.samples[m.next] = execMs
	m.next = (m.next + 1) % sampleSize
	if m.filled < sampleSize {
		m.filled++
	}
	m.total++
	if fromCache {
		m.hits++
	}
	if hadError {
		m.errors++
	}
	if execMs > m.slowMs {
		m.slow++
	}
	errorRate := m.errorRateLocked()
	m.mu.Unlock()

	if m.limiter.IsLimited(alertGateKey) {
		return
	}
	if execMs > m.slowMs {
		m.raise(Alert{
			Type:    AlertSlowQuery,
			Key:     key,
			Message: fmt.Sprintf("query %s took %.0fms", key, execMs),
			Value:   execMs,
		})
	}
	if errorRate > m.errorPct {
		m.raise(Alert{
			Type:    AlertErrorSpike,
			Key:     key,
			Message: fmt.Sprintf("error rate at %.2f%%", errorRate),
			Value:   errorRate,
		})
	}
}

// RecordRateLimitHit counts a request rejected by a rate limiter.
func (m *Monitor) RecordRateLimitHit(key string) {
	m.mu.Lock()
	m.rateLimitHits++
	m.mu.Unlock()
	scope, _, _ := strings.Cut(key, ":")
	metrics.RecordRateLimitHit(scope)
}

func (m *Monitor) raise(a Alert) {
	a.At = m.now()
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if len(m.alerts) > alertLimit {
		m.alerts = append([]Alert(nil), m.alerts[len(m.alerts)-alertLimit:]...)
	}
	m.mu.Unlock()

	metrics.RecordMonitorAlert(string(a.Type))
	m.log.Warn(context.Background(), "performance alert",
		logger.String("type", string(a.Type)),
		logger.String("key", a.Key),
		logger.Float64("value", a.Value))
}

func (m *Monitor) errorRateLocked() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.errors) / float64(m.total) * 100
}

// Metrics returns the current statistics.
func (m *Monitor) Metrics() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalQueries:  m.total,
		CacheHits:     m.hits,
		Errors:        m.errors,
		ErrorRate:     m.errorRateLocked(),
		SlowQueries:   m.slow,
		RateLimitHits: m.rateLimitHits,
		Samples:       m.filled,
	}
	if m.total > 0 {
		s.CacheHitRate = float64(m.hits) / float64(m.total) * 100
	}
	if m.filled > 0 {
		var sum float64
		for i := 0; i < m.filled; i++ {
			sum += m.samples[i]
		}
		s.AverageMs = sum / float64(m.filled)
	}
	return s
}

// Alerts returns the retained alerts, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

// Sweep drops alerts older than the configured age and returns how many went.
func (m *Monitor) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.maxAge)
	m.mu.Lock()
	kept := m.alerts[:0]
	for _, a := range m.alerts {
		if a.At.After(cutoff) {
			kept = append(kept, a)
		}
	}
	dropped := len(m.alerts) - len(kept)
	m.alerts = kept
	m.mu.Unlock()

	if dropped > 0 {
		m.log.Debug(ctx, "swept performance alerts", logger.Int("dropped", dropped))
	}
	return dropped
}

// Clear resets every counter, sample and alert.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = [sampleSize]float64{}
	m.next, m.filled = 0, 0
	m.total, m.hits, m.errors, m.slow, m.rateLimitHits = 0, 0, 0, 0, 0
	m.alerts = nil
	m.limiter.Reset(alertGateKey)
}
