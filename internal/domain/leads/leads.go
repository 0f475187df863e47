// Package leads reads lead scores and alerts through the cache and applies
// human-initiated updates.
//
// Reads never fail: a permission denial is logged at warn and any other
// failure at error, and both yield an empty result. Writes return their
// errors and invalidate the affected cache keys on success.
package leads

import (
	"context"
	"sort"

	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
)

const (
	defaultTopDomains = 5
	defaultAlertLimit = 50
)

// Service is the lead score store accessor.
type Service struct {
	client     store.Client
	cache      *cache.Cache
	inv        *cache.Invalidator
	topDomains int
	alertLimit int
	log        logger.Logger
}

// New creates a Service.
func New(client store.Client, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		client:     client,
		cache:      c,
		topDomains: defaultTopDomains,
		alertLimit: defaultAlertLimit,
		log:        logger.Get().Named("leads"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.inv == nil {
		s.inv = cache.NewInvalidator(c)
	}
	return s
}

// ListHot returns hot leads, highest score first.
func (s *Service) ListHot(ctx context.Context) []model.LeadScore {
	leads := s.readLeads(ctx, cache.KeyHotLeads, cache.TierCritical, store.Query{
		Relation: store.RelScores,
		Filters:  []store.Filter{store.Eq("is_hot_lead", true)},
		Order:    []store.Order{{Column: "total_score", Desc: true}},
	})
	metrics.UpdateHotLeads(len(leads))
	return leads
}

// ListAll returns every lead, highest score first.
func (s *Service) ListAll(ctx context.Context) []model.LeadScore {
	return s.readLeads(ctx, cache.KeyAllLeads, cache.TierImportant, store.Query{
		Relation: store.RelScores,
		Order:    []store.Order{{Column: "total_score", Desc: true}},
	})
}

func (s *Service) readLeads(ctx context.Context, key string, tier cache.Tier, q store.Query) []model.LeadScore {
	leads, err := cache.GetOrFetch(ctx, s.cache, key, tier, func(ctx context.Context) ([]model.LeadScore, error) {
		rows, err := s.client.Select(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]model.LeadScore, 0, len(rows))
		for _, r := range rows {
			out = append(out, store.LeadFromRow(r))
		}
		return out, nil
	})
	if err != nil {
		s.readFailed(ctx, key, err)
		return []model.LeadScore{}
	}
	return leads
}

// Get returns the lead of visitorID.
func (s *Service) Get(ctx context.Context, visitorID string) (model.LeadScore, error) {
	key := cache.KeyLeadPrefix + visitorID
	return cache.GetOrFetch(ctx, s.cache, key, cache.TierCritical, func(ctx context.Context) (model.LeadScore, error) {
		rows, err := s.client.Select(ctx, store.Query{
			Relation: store.RelScores,
			Filters:  []store.Filter{store.Eq("visitor_id", visitorID)},
			Limit:    1,
		})
		if err != nil {
			return model.LeadScore{}, err
		}
		if len(rows) == 0 {
			return model.LeadScore{}, errs.NotFound("leads.get")
		}
		return store.LeadFromRow(rows[0]), nil
	})
}

// Update applies a partial update to the lead of visitorID.
func (s *Service) Update(ctx context.Context, visitorID string, u model.LeadUpdate) (model.LeadScore, error) {
	if visitorID == "" {
		return model.LeadScore{}, errs.Invalid("leads.update", "visitor_id is required")
	}
	if u.Empty() {
		return model.LeadScore{}, errs.Invalid("leads.update", "no fields to update")
	}
	if u.HotLeadThreshold != nil && *u.HotLeadThreshold <= 0 {
		return model.LeadScore{}, errs.Invalid("leads.update", "hot_lead_threshold must be positive")
	}

	rows, err := s.client.Update(ctx, store.RelScores,
		[]store.Filter{store.Eq("visitor_id", visitorID)}, store.LeadPatch(u))
	if err != nil {
		return model.LeadScore{}, err
	}
	if len(rows) == 0 {
		return model.LeadScore{}, errs.NotFound("leads.update")
	}
	s.inv.Invalidate(ctx, cache.WriteLeads)
	return store.LeadFromRow(rows[0]), nil
}

// Stats aggregates lead counts and the most active company domains.
func (s *Service) Stats(ctx context.Context) model.Stats {
	stats, err := cache.GetOrFetch(ctx, s.cache, cache.KeyLeadStats, cache.TierImportant, s.computeStats)
	if err != nil {
		s.readFailed(ctx, cache.KeyLeadStats, err)
		return model.Stats{StatusBreakdown: map[string]int{}, TopDomains: []model.DomainCount{}}
	}
	return stats
}

func (s *Service) computeStats(ctx context.Context) (model.Stats, error) {
	rows, err := s.client.Select(ctx, store.Query{
		Relation: store.RelScores,
		Columns:  []string{"total_score", "is_hot_lead", "lead_status"},
	})
	if err != nil {
		return model.Stats{}, err
	}

	stats := model.Stats{StatusBreakdown: map[string]int{}, TopDomains: []model.DomainCount{}}
	total := 0
	for _, r := range rows {
		stats.TotalLeads++
		total += r.Int("total_score")
		if r.Bool("is_hot_lead") {
			stats.HotLeads++
		}
		status := r.String("lead_status")
		if status == "" {
			status = "active"
		}
		stats.StatusBreakdown[status]++
	}
	if stats.TotalLeads > 0 {
		stats.AverageScore = float64(total) / float64(stats.TotalLeads)
	}

	events, err := s.client.Select(ctx, store.Query{
		Relation: store.RelEvents,
		Columns:  []string{"company_domain"},
	})
	switch {
	case errs.IsPermissionDenied(err):
		s.log.Warn(ctx, "not allowed to read events for domain stats", logger.Error(err))
	case err != nil:
		return model.Stats{}, err
	}
	counts := map[string]int{}
	for _, r := range events {
		if d := r.String("company_domain"); d != "" {
			counts[d]++
		}
	}
	for d, n := range counts {
		stats.TopDomains = append(stats.TopDomains, model.DomainCount{Domain: d, Events: n})
	}
	sort.Slice(stats.TopDomains, func(i, j int) bool {
		a, b := stats.TopDomains[i], stats.TopDomains[j]
		if a.Events != b.Events {
			return a.Events > b.Events
		}
		return a.Domain < b.Domain
	})
	if len(stats.TopDomains) > s.topDomains {
		stats.TopDomains = stats.TopDomains[:s.topDomains]
	}
	return stats, nil
}

// ListAlerts returns the newest alerts, optionally only unread ones.
func (s *Service) ListAlerts(ctx context.Context, unreadOnly bool) []model.Alert {
	key := cache.KeyAllAlerts
	q := store.Query{
		Relation: store.RelAlerts,
		Order:    []store.Order{{Column: "created_at", Desc: true}},
		Limit:    s.alertLimit,
	}
	if unreadOnly {
		key = cache.KeyUnreadAlerts
		q.Filters = []store.Filter{store.Eq("is_read", false)}
	}
	alerts, err := cache.GetOrFetch(ctx, s.cache, key, cache.TierCritical, func(ctx context.Context) ([]model.Alert, error) {
		rows, err := s.client.Select(ctx, q)
		if err != nil {
			return nil, err
		}
		out := make([]model.Alert, 0, len(rows))
		for _, r := range rows {
			out = append(out, store.AlertFromRow(r))
		}
		return out, nil
	})
	if err != nil {
		s.readFailed(ctx, key, err)
		return []model.Alert{}
	}
	return alerts
}

// MarkAlertRead flags the alert id as read.
func (s *Service) MarkAlertRead(ctx context.Context, id string) error {
	if id == "" {
		return errs.Invalid("alerts.mark_read", "id is required")
	}
	rows, err := s.client.Update(ctx, store.RelAlerts,
		[]store.Filter{store.Eq("id", id)}, store.Row{"is_read": true})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errs.NotFound("alerts.mark_read")
	}
	s.inv.Invalidate(ctx, cache.WriteAlerts)
	return nil
}

func (s *Service) readFailed(ctx context.Context, key string, err error) {
	if errs.IsPermissionDenied(err) {
		s.log.Warn(ctx, "read not permitted, returning empty result", logger.String("key", key), logger.Error(err))
		return
	}
	s.log.Error(ctx, "read failed, returning empty result", logger.String("key", key), logger.Error(err))
}
