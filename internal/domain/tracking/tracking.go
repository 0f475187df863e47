// Package tracking records visitor behavior events.
//
// A call passes a per-session debounce gate, then the per-visitor rate
// limiter, is scored against the active rules and persisted. Score
// aggregation happens in the store; the tracker only signals that cached
// aggregates are stale.
package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/internal/domain/scoring"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultCooldown = 5 * time.Second
	maxGates        = 10_000
)

// Tracker persists behavior events. It is safe for concurrent use.
type Tracker struct {
	client      store.Client
	engine      *scoring.Engine
	limiter     *ratelimit.Limiter
	recorder    RateLimitRecorder
	invalidator Scheduler
	cooldown    time.Duration
	now         func() time.Time
	newID       func() string
	log         logger.Logger

	mu    sync.Mutex
	gates map[string]*rate.Limiter
}

// New creates a Tracker writing to client and scoring with engine.
func New(client store.Client, engine *scoring.Engine, opts ...Option) *Tracker {
	t := &Tracker{
		client:   client,
		engine:   engine,
		cooldown: defaultCooldown,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      logger.Get().Named("tracking"),
		gates:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.limiter == nil {
		t.limiter = ratelimit.New()
	}
	return t
}

// Track validates, scores and persists one event.
//
// It returns ErrDebounced when the session is inside its cooldown and an
// errs.KindRateLimited error when the visitor exceeded the limiter. Store
// failures are returned with their kind; callers that tolerate permission
// denial match errs.IsPermissionDenied.
func (t *Tracker) Track(ctx context.Context, req model.TrackRequest) (model.BehaviorEvent, error) {
	req.Normalize()
	if err := Validate(req); err != nil {
		metrics.RecordEventDropped("invalid")
		return model.BehaviorEvent{}, err
	}

	gateKey := req.SessionID
	if gateKey == "" {
		gateKey = req.VisitorID
	}
	if !t.allow(gateKey) {
		metrics.RecordEventDropped("debounced")
		return model.BehaviorEvent{}, ErrDebounced
	}

	limitKey := "track:" + req.VisitorID
	if t.limiter.IsLimited(limitKey) {
		if t.recorder != nil {
			t.recorder.RecordRateLimitHit(limitKey)
		}
		metrics.RecordEventDropped("rate_limited")
		return model.BehaviorEvent{}, errs.RateLimited(limitKey)
	}

	res := t.engine.Resolve(ctx, scoring.Input{
		EventType:   req.EventType,
		PagePath:    req.PagePath,
		Industry:    req.PayloadString("industry"),
		CompanySize: req.PayloadString("company_size"),
	})

	created := req.TS
	if created.IsZero() {
		created = t.now()
	}
	id := req.EventID
	if id == "" {
		id = t.newID()
	}
	ev := model.BehaviorEvent{
		ID:            id,
		SessionID:     req.SessionID,
		VisitorID:     req.VisitorID,
		CompanyDomain: req.CompanyDomain,
		EventType:     req.EventType,
		PagePath:      req.PagePath,
		Payload:       req.Payload,
		PointsAwarded: res.Points,
		RuleID:        res.RuleID,
		Attribution:   model.ParseAttribution(req.PageURL, req.Referrer, req.UserAgent),
		CreatedAt:     created.UTC(),
	}

	row, err := t.client.Insert(ctx, store.RelEvents, store.EventRow(ev))
	if err != nil {
		metrics.RecordEventDropped(errs.KindOf(err).String())
		return model.BehaviorEvent{}, err
	}
	metrics.RecordEventTracked(string(ev.EventType), ev.PointsAwarded)
	if t.invalidator != nil {
		t.invalidator.Schedule(cache.WriteEvents)
	}
	return store.EventFromRow(row), nil
}

// Fire tracks req in the background. Failures are logged by kind and never
// reach the caller.
func (t *Tracker) Fire(ctx context.Context, req model.TrackRequest) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		_, err := t.Track(ctx, req)
		t.Report(ctx, req, err)
	}()
}

// Report logs the outcome of a Track call at the level its error kind calls for.
func (t *Tracker) Report(ctx context.Context, req model.TrackRequest, err error) {
	if err == nil {
		return
	}
	fields := []logger.Field{
		logger.String("visitor_id", req.VisitorID),
		logger.String("event_type", string(req.EventType)),
		logger.Error(err),
	}
	if errors.Is(err, ErrDebounced) {
		t.log.Debug(ctx, "event debounced", fields...)
		return
	}
	switch errs.KindOf(err) {
	case errs.KindRateLimited:
		t.log.Debug(ctx, "event rate limited", fields...)
	case errs.KindPermissionDenied:
		t.log.Warn(ctx, "not allowed to record event", fields...)
	case errs.KindInvalid:
		t.log.Warn(ctx, "invalid event dropped", fields...)
	case errs.KindNetwork, errs.KindDatabase, errs.KindNotFound, errs.KindUnknown:
		t.log.Error(ctx, "failed to record event", fields...)
	}
}

// allow reports whether the session's cooldown has elapsed and starts a
// new one when it has.
func (t *Tracker) allow(key string) bool {
	if t.cooldown <= 0 {
		return true
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	gate, ok := t.gates[key]
	if !ok {
		if len(t.gates) >= maxGates {
			t.pruneGates(now)
		}
		gate = rate.NewLimiter(rate.Every(t.cooldown), 1)
		t.gates[key] = gate
	}
	return gate.AllowN(now, 1)
}

// pruneGates drops gates whose cooldown has fully elapsed. Called with mu held.
func (t *Tracker) pruneGates(now time.Time) {
	for k, g := range t.gates {
		if g.TokensAt(now) >= 1 {
			delete(t.gates, k)
		}
	}
}

// Validate reports a request the tracker would reject as invalid.
func Validate(req model.TrackRequest) error {
	switch {
	case req.VisitorID == "":
		return errs.Invalid("track", "visitor_id is required")
	case req.EventType == "":
		return errs.Invalid("track", "event_type is required")
	case req.EventID != "" && uuid.Validate(req.EventID) != nil:
		return errs.Invalid("track", "event_id must be a uuid")
	}
	return nil
}
