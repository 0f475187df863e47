// Package realtime reacts to lead and alert changes pushed by the store.
//
// A Notifier keeps one change subscription open, turns inserts and hot-lead
// transitions into RealtimeUpdates, and sends user-facing notifications for
// hot leads and urgent alerts through its sinks.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
	"github.com/okian/leadpulse/pkg/metrics"
)

const (
	recentSize       = 20
	defaultRetryBase = time.Second
	defaultRetryCap  = 30 * time.Second

	// HotLeadTitle heads the notification sent when a lead turns hot.
	HotLeadTitle = "🔥 Hot lead"
)

// State of the change subscription.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateErrored
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

var filters = []store.ChangeFilter{ //nolint:gochecknoglobals // fixed subscription
	{Relation: store.RelScores, Op: store.ChangeInsert},
	{Relation: store.RelScores, Op: store.ChangeUpdate},
	{Relation: store.RelAlerts, Op: store.ChangeInsert},
}

// Notifier is safe for concurrent use.
type Notifier struct {
	client    store.Client
	inv       *cache.Invalidator
	sinks     []Sink
	reconnect bool
	retryBase time.Duration
	retryCap  time.Duration
	now       func() time.Time
	log       logger.Logger

	mu     sync.Mutex
	state  State
	gen    int
	sub    store.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	recent []model.RealtimeUpdate
}

// New creates a Notifier over client.
func New(client store.Client, opts ...Option) *Notifier {
	n := &Notifier{
		client:    client,
		retryBase: defaultRetryBase,
		retryCap:  defaultRetryCap,
		now:       time.Now,
		log:       logger.Get().Named("realtime"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start opens the change subscription.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.cancel != nil {
		n.mu.Unlock()
		return nil
	}
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.mu.Unlock()

	return n.subscribe()
}

// Stop closes the subscription and cancels any pending reconnect.
func (n *Notifier) Stop() error {
	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	sub := n.sub
	n.sub = nil
	n.gen++
	n.mu.Unlock()

	n.setState(StateDisconnected)
	if sub != nil {
		return sub.Close()
	}
	return nil
}

// State returns the current subscription state.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Recent returns the last updates, newest first.
func (n *Notifier) Recent() []model.RealtimeUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.RealtimeUpdate, len(n.recent))
	for i, u := range n.recent {
		out[len(n.recent)-1-i] = u
	}
	return out
}

func (n *Notifier) subscribe() error {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	ctx := n.ctx
	n.mu.Unlock()

	n.setState(StateConnecting)
	sub, err := n.client.Subscribe(ctx, filters,
		func(c store.Change) { n.handle(gen, c) },
		func(s store.Status, err error) { n.onStatus(gen, s, err) },
	)
	if err != nil {
		n.setState(StateErrored)
		return fmt.Errorf("subscribe to lead changes: %w", err)
	}

	n.mu.Lock()
	stale := gen != n.gen
	if !stale {
		n.sub = sub
	}
	n.mu.Unlock()
	if stale {
		return sub.Close()
	}
	return nil
}

func (n *Notifier) current(gen int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return gen == n.gen
}

func (n *Notifier) onStatus(gen int, s store.Status, err error) {
	if !n.current(gen) {
		return
	}
	switch s {
	case store.StatusConnecting:
		n.setState(StateConnecting)
	case store.StatusSubscribed:
		n.setState(StateSubscribed)
		n.log.Info(context.Background(), "subscribed to lead changes")
	case store.StatusClosed:
		n.setState(StateDisconnected)
	case store.StatusError:
		n.setState(StateErrored)
		n.log.Error(context.Background(), "lead change channel failed", logger.Error(err))
		if n.reconnect {
			go n.resubscribe(gen)
		}
	}
}

// resubscribe replaces the failed subscription of generation gen.
func (n *Notifier) resubscribe(gen int) {
	n.mu.Lock()
	ctx := n.ctx
	old := n.sub
	if gen != n.gen || ctx == nil {
		n.mu.Unlock()
		return
	}
	n.sub = nil
	n.gen++
	n.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.retryBase
	b.MaxInterval = n.retryCap
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, n.subscribe()
	}, backoff.WithBackOff(b), backoff.WithNotify(func(err error, next time.Duration) {
		n.log.Warn(ctx, "resubscribe failed", logger.Duration("retry_in", next), logger.Error(err))
	}))
	if err != nil && !errors.Is(err, context.Canceled) {
		n.log.Error(ctx, "giving up on lead change channel", logger.Error(err))
	}
}

func (n *Notifier) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()

	var status int
	switch s {
	case StateDisconnected:
		status = metrics.RealtimeDisconnected
	case StateConnecting:
		status = metrics.RealtimeConnecting
	case StateSubscribed:
		status = metrics.RealtimeSubscribed
	case StateErrored:
		status = metrics.RealtimeErrored
	}
	_ = metrics.UpdateRealtimeStatus(status)
}

// handle processes one change of subscription generation gen.
func (n *Notifier) handle(gen int, c store.Change) {
	if !n.current(gen) {
		return
	}
	ctx := context.Background()

	switch c.Relation {
	case store.RelScores:
		n.invalidate(ctx, cache.WriteLeads)
		lead := store.LeadFromRow(c.New)
		switch c.Op {
		case store.ChangeInsert:
			n.push(model.UpdateNewLead, &lead, nil)
			if lead.IsHotLead {
				n.hotLead(ctx, lead)
			}
		case store.ChangeUpdate:
			if c.Old != nil && !c.Old.Bool("is_hot_lead") && lead.IsHotLead {
				n.hotLead(ctx, lead)
			}
		}
	case store.RelAlerts:
		if c.Op != store.ChangeInsert {
			return
		}
		n.invalidate(ctx, cache.WriteAlerts)
		alert := store.AlertFromRow(c.New)
		n.push(model.UpdateNewAlert, nil, &alert)
		if alert.Priority.IsUrgent() {
			n.notify(ctx, model.Notification{
				Kind:     model.UpdateNewAlert,
				Title:    fmt.Sprintf("%s priority alert", alert.Priority),
				Message:  alert.Message,
				Priority: alert.Priority,
			})
		}
	case store.RelRules, store.RelEvents:
	}
}

func (n *Notifier) hotLead(ctx context.Context, lead model.LeadScore) {
	n.push(model.UpdateHotLead, &lead, nil)
	n.notify(ctx, model.Notification{
		Kind:     model.UpdateHotLead,
		Title:    HotLeadTitle,
		Message:  fmt.Sprintf("%s reached %d points", lead.DisplayName(), lead.TotalScore),
		Priority: model.PriorityHigh,
	})
}

func (n *Notifier) push(kind model.UpdateKind, lead *model.LeadScore, alert *model.Alert) {
	n.mu.Lock()
	n.recent = append(n.recent, model.RealtimeUpdate{Kind: kind, Lead: lead, Alert: alert, At: n.now()})
	if len(n.recent) > recentSize {
		n.recent = append([]model.RealtimeUpdate(nil), n.recent[len(n.recent)-recentSize:]...)
	}
	n.mu.Unlock()
	metrics.RecordRealtimeUpdate(string(kind))
}

func (n *Notifier) notify(ctx context.Context, note model.Notification) {
	note.At = n.now()
	for _, s := range n.sinks {
		err := s.Notify(ctx, note)
		metrics.RecordNotification(string(note.Kind), err == nil)
		if err != nil {
			n.log.Warn(ctx, "notification not delivered",
				logger.String("sink", s.Name()), logger.String("title", note.Title), logger.Error(err))
		}
	}
}

func (n *Notifier) invalidate(ctx context.Context, write string) {
	if n.inv != nil {
		n.inv.Invalidate(ctx, write)
	}
}
