// Package scoring resolves behavior events to points using the active
// scoring rules.
package scoring

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/ratelimit"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
)

const limiterKey = "rules:fetch"

// Input is the part of an event rules are matched against.
type Input struct {
	EventType   model.EventType
	PagePath    string
	Industry    string
	CompanySize string
}

// Result is the outcome of resolving an event. A zero Result means no rule
// applied.
type Result struct {
	RuleID string
	Points int
}

// Engine loads scoring rules and resolves events against them.
type Engine struct {
	client   store.Client
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	recorder RateLimitRecorder
	log      logger.Logger

	mu   sync.RWMutex
	last []model.ScoringRule
}

// New creates an Engine reading rules from client through c.
func New(client store.Client, c *cache.Cache, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		cache:  c,
		log:    logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(ratelimit.WithMaxRequests(10), ratelimit.WithWindow(time.Minute))
	}
	return e
}

// Rules returns the active rules ordered by points, highest first.
//
// A load rejected by the limiter falls back to the last loaded set. A
// permission denial yields no rules. Other failures return the last loaded
// set together with the error.
func (e *Engine) Rules(ctx context.Context) ([]model.ScoringRule, error) {
	rules, err := cache.GetOrFetch(ctx, e.cache, cache.KeyActiveRules, cache.TierPersistent, e.fetch)
	switch {
	case err == nil:
		e.mu.Lock()
		e.last = rules
		e.mu.Unlock()
		metrics.UpdateRulesLoaded(len(rules))
		return rules, nil
	case errs.KindOf(err) == errs.KindRateLimited:
		if e.recorder != nil {
			e.recorder.RecordRateLimitHit(limiterKey)
		}
		e.log.Debug(ctx, "rule load rate limited, using last loaded rules")
		return e.lastLoaded(), nil
	case errs.IsPermissionDenied(err):
		e.log.Warn(ctx, "not allowed to read scoring rules", logger.Error(err))
		return nil, nil
	default:
		return e.lastLoaded(), err
	}
}

func (e *Engine) fetch(ctx context.Context) ([]model.ScoringRule, error) {
	rows, ran, err := ratelimit.Execute(ctx, e.limiter, limiterKey, func(ctx context.Context) ([]store.Row, error) {
		return e.client.Select(ctx, store.Query{
			Relation: store.RelRules,
			Filters:  []store.Filter{store.Eq("is_active", true)},
			Order:    []store.Order{{Column: "points", Desc: true}},
		})
	})
	if !ran {
		return nil, errs.RateLimited(limiterKey)
	}
	if err != nil {
		return nil, err
	}
	rules := make([]model.ScoringRule, 0, len(rows))
	for _, r := range rows {
		rules = append(rules, store.RuleFromRow(r))
	}
	return rules, nil
}

func (e *Engine) lastLoaded() []model.ScoringRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Resolve loads the rules and returns the points the first matching rule
// awards. Load failures are logged and scored with whatever rules remain.
func (e *Engine) Resolve(ctx context.Context, in Input) Result {
	rules, err := e.Rules(ctx)
	if err != nil {
		e.log.Error(ctx, "failed to load scoring rules", logger.Error(err))
	}
	rule, ok := Match(rules, in)
	metrics.RecordRuleMatch(ok)
	if !ok {
		return Result{}
	}
	return Result{RuleID: rule.ID, Points: rule.Points}
}

// Match returns the first rule, in order, whose trigger type equals the
// event type, whose page pattern (if any) matches the page path and whose
// applicability filters do not exclude the event.
func Match(rules []model.ScoringRule, in Input) (model.ScoringRule, bool) {
	for _, r := range rules {
		if r.TriggerType != in.EventType {
			continue
		}
		if r.PagePattern != "" && !likeMatch(r.PagePattern, in.PagePath) {
			continue
		}
		if excluded(r.Industries, in.Industry) || excluded(r.CompanySizes, in.CompanySize) {
			continue
		}
		return r, true
	}
	return model.ScoringRule{}, false
}

// excluded reports whether a non-empty filter rules out value. An unknown
// value never excludes.
func excluded(filter []string, value string) bool {
	if len(filter) == 0 || value == "" {
		return false
	}
	for _, f := range filter {
		if strings.EqualFold(f, value) {
			return false
		}
	}
	return true
}
