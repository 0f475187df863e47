// Package memstore is an in-process store.Client. It applies the same
// store-side aggregation as the Postgres migration: inserting a behavior event
// upserts the visitor's lead score and raises a hot_lead alert when the score
// crosses its threshold.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/internal/domain/model"
)

const codeInsufficientPrivilege = "42501"

type subscriber struct {
	id       int
	filters  []store.ChangeFilter
	onChange store.ChangeHandler
	onStatus store.StatusHandler
}

// Store keeps every relation in memory.
type Store struct {
	now       func() time.Time
	threshold int

	mu       sync.Mutex
	tables   map[store.Relation][]store.Row
	denied   map[store.Relation]bool
	failures map[store.Relation]error
	subs     map[int]*subscriber
	nextSub  int
}

var _ store.Client = (*Store)(nil)

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:       time.Now,
		threshold: model.DefaultHotLeadThreshold,
		tables:    make(map[store.Relation][]store.Row),
		denied:    make(map[store.Relation]bool),
		failures:  make(map[store.Relation]error),
		subs:      make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deny toggles permission denial for rel at runtime.
func (s *Store) Deny(rel store.Relation, denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if denied {
		s.denied[rel] = true
		return
	}
	delete(s.denied, rel)
}

// Fail makes every call on rel return err until cleared with a nil err.
func (s *Store) Fail(rel store.Relation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, rel)
		return
	}
	s.failures[rel] = err
}

// Len returns the number of rows in rel.
func (s *Store) Len(rel store.Relation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[rel])
}

func (s *Store) check(op string, rel store.Relation) error {
	if !rel.Known() {
		return errs.Invalid(op, fmt.Sprintf("unknown relation %q", rel))
	}
	if s.denied[rel] {
		return errs.PermissionDenied(op, codeInsufficientPrivilege, fmt.Errorf("permission denied for table %s", rel))
	}
	if err := s.failures[rel]; err != nil {
		return err
	}
	return nil
}

// Select implements store.Client.
func (s *Store) Select(_ context.Context, q store.Query) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check("store.select", q.Relation); err != nil {
		return nil, err
	}

	var out []store.Row
	for _, r := range s.tables[q.Relation] {
		if r.MatchesFilters(q.Filters) {
			out = append(out, project(r, q.Columns))
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j], q.Order) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func project(r store.Row, cols []string) store.Row {
	if len(cols) == 0 {
		return r.Clone()
	}
	out := make(store.Row, len(cols))
	for _, c := range cols {
		out[c] = r[c]
	}
	return out
}

// less orders rows with NULLs last, as Postgres does for ascending order.
func less(a, b store.Row, order []store.Order) bool {
	for _, o := range order {
		av, bv := a[o.Column], b[o.Column]
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return false
		case bv == nil:
			return true
		}
		c := store.Compare(av, bv)
		if c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// Insert implements store.Client.
func (s *Store) Insert(_ context.Context, rel store.Relation, row store.Row) (store.Row, error) {
	s.mu.Lock()
	if err := s.check("store.insert", rel); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	r := s.withDefaults(rel, row.Clone())
	s.tables[rel] = append(s.tables[rel], r)
	changes := []store.Change{{Relation: rel, Op: store.ChangeInsert, New: r.Clone()}}
	if rel == store.RelEvents {
		changes = append(changes, s.aggregate(r)...)
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	deliver(subs, changes)
	return r.Clone(), nil
}

func (s *Store) withDefaults(rel store.Relation, r store.Row) store.Row {
	now := s.now()
	if r.String("id") == "" {
		r["id"] = uuid.NewString()
	}
	if r.Time("created_at").IsZero() && rel != store.RelScores {
		r["created_at"] = now
	}
	switch rel {
	case store.RelScores:
		setDefault(r, "total_score", 0)
		setDefault(r, "hot_lead_threshold", s.threshold)
		setDefault(r, "visit_count", 0)
		setDefault(r, "lead_status", "active")
		setDefault(r, "crm_synced", false)
		setDefault(r, "first_visit", now)
		setDefault(r, "last_activity", now)
		r["is_hot_lead"] = r.Int("total_score") >= r.Int("hot_lead_threshold")
	case store.RelAlerts:
		setDefault(r, "is_read", false)
		setDefault(r, "priority", model.PriorityMedium.String())
	case store.RelRules:
		setDefault(r, "is_active", true)
	case store.RelEvents:
		setDefault(r, "points_awarded", 0)
	}
	return r
}

func setDefault(r store.Row, col string, v any) {
	if cur, ok := r[col]; !ok || cur == nil {
		r[col] = v
	}
}

// aggregate upserts the lead score for an inserted event. Called with mu held.
func (s *Store) aggregate(event store.Row) []store.Change {
	now := event.Time("created_at")
	visitor := event.String("visitor_id")
	points := event.Int("points_awarded")
	pageView := event.String("event_type") == string(model.EventPageView)

	for i, lead := range s.tables[store.RelScores] {
		if lead.String("visitor_id") != visitor {
			continue
		}
		old := lead.Clone()
		next := lead.Clone()
		next["total_score"] = lead.Int("total_score") + points
		next["last_activity"] = now
		next["updated_at"] = now
		if pageView {
			next["visit_count"] = lead.Int("visit_count") + 1
		}
		if d := event.String("company_domain"); d != "" && lead.String("company_domain") == "" {
			next["company_domain"] = d
		}
		return s.commitScore(i, old, next)
	}

	lead := store.Row{
		"visitor_id":  visitor,
		"total_score": points,
		"first_visit": now,
		"visit_count": 1,
	}
	if d := event.String("company_domain"); d != "" {
		lead["company_domain"] = d
	}
	lead = s.withDefaults(store.RelScores, lead)
	lead["last_activity"] = now
	s.tables[store.RelScores] = append(s.tables[store.RelScores], lead)
	changes := []store.Change{{Relation: store.RelScores, Op: store.ChangeInsert, New: lead.Clone()}}
	if lead.Bool("is_hot_lead") {
		changes = append(changes, s.raiseHotAlert(lead))
	}
	return changes
}

// commitScore stores next at index i, recomputing the hot flag. Called with mu held.
func (s *Store) commitScore(i int, old, next store.Row) []store.Change {
	next["is_hot_lead"] = next.Int("total_score") >= next.Int("hot_lead_threshold")
	s.tables[store.RelScores][i] = next
	changes := []store.Change{{Relation: store.RelScores, Op: store.ChangeUpdate, New: next.Clone(), Old: old}}
	if !old.Bool("is_hot_lead") && next.Bool("is_hot_lead") {
		changes = append(changes, s.raiseHotAlert(next))
	}
	return changes
}

func (s *Store) raiseHotAlert(lead store.Row) store.Change {
	threshold := lead.Int("hot_lead_threshold")
	alert := s.withDefaults(store.RelAlerts, store.Row{
		"lead_score_id":     lead.String("id"),
		"alert_type":        model.AlertTypeHotLead,
		"threshold_reached": threshold,
		"message":           fmt.Sprintf("Lead reached %d points (threshold %d)", lead.Int("total_score"), threshold),
		"priority":          model.PriorityHigh.String(),
	})
	s.tables[store.RelAlerts] = append(s.tables[store.RelAlerts], alert)
	return store.Change{Relation: store.RelAlerts, Op: store.ChangeInsert, New: alert.Clone()}
}

// Update implements store.Client.
func (s *Store) Update(_ context.Context, rel store.Relation, filters []store.Filter, patch store.Row) ([]store.Row, error) {
	s.mu.Lock()
	if err := s.check("store.update", rel); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var (
		out     []store.Row
		changes []store.Change
	)
	for i, r := range s.tables[rel] {
		if !r.MatchesFilters(filters) {
			continue
		}
		old := r.Clone()
		next := r.Clone()
		for k, v := range patch {
			next[k] = v
		}
		if rel == store.RelScores {
			next["updated_at"] = s.now()
			changes = append(changes, s.commitScore(i, old, next)...)
		} else {
			s.tables[rel][i] = next
			changes = append(changes, store.Change{Relation: rel, Op: store.ChangeUpdate, New: next.Clone(), Old: old})
		}
		out = append(out, next.Clone())
	}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	deliver(subs, changes)
	return out, nil
}

// Subscribe implements store.Client. Status callbacks fire synchronously.
func (s *Store) Subscribe(_ context.Context, filters []store.ChangeFilter, onChange store.ChangeHandler, onStatus store.StatusHandler) (store.Subscription, error) {
	if onStatus == nil {
		onStatus = func(store.Status, error) {}
	}
	onStatus(store.StatusConnecting, nil)

	s.mu.Lock()
	s.nextSub++
	sub := &subscriber{id: s.nextSub, filters: filters, onChange: onChange, onStatus: onStatus}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	onStatus(store.StatusSubscribed, nil)
	return &subscription{store: s, id: sub.id}, nil
}

// Disconnect reports err to every subscriber and drops them, as a broken
// channel would.
func (s *Store) Disconnect(err error) {
	s.mu.Lock()
	subs := s.snapshotSubs()
	s.subs = make(map[int]*subscriber)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.onStatus(store.StatusError, err)
	}
}

// Subscribers returns the number of open subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) snapshotSubs() []*subscriber {
	out := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func deliver(subs []*subscriber, changes []store.Change) {
	for _, c := range changes {
		for _, sub := range subs {
			if c.Matches(sub.filters) {
				sub.onChange(c)
			}
		}
	}
}

type subscription struct {
	store *Store
	id    int
	once  sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		sub, ok := s.store.subs[s.id]
		delete(s.store.subs, s.id)
		s.store.mu.Unlock()
		if ok {
			sub.onStatus(store.StatusClosed, nil)
		}
	})
	return nil
}
