package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/domain/errs"
	"github.com/okian/leadpulse/pkg/logger"
)

const listenerPingInterval = 90 * time.Second

// notification is the payload written by leadpulse_notify_change().
type notification struct {
	Table     string    `json:"table"`
	Type      string    `json:"type"`
	Record    store.Row `json:"record"`
	OldRecord store.Row `json:"old_record"`
}

func decodeNotification(payload string) (store.Change, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return store.Change{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Table == "" || n.Type == "" {
		return store.Change{}, fmt.Errorf("decode notification: missing table or type")
	}
	return store.Change{
		Relation: store.Relation(n.Table),
		Op:       store.ChangeOp(n.Type),
		New:      n.Record,
		Old:      n.OldRecord,
	}, nil
}

func statusFor(ev pq.ListenerEventType) store.Status {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		return store.StatusSubscribed
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		return store.StatusError
	}
	return store.StatusError
}

// Subscribe implements store.Client with LISTEN on the configured channel.
func (c *Client) Subscribe(ctx context.Context, filters []store.ChangeFilter, onChange store.ChangeHandler, onStatus store.StatusHandler) (store.Subscription, error) {
	const op = "store.subscribe"
	if c.dsn == "" {
		return nil, errs.Invalid(op, "change listener needs a dsn")
	}
	if onStatus == nil {
		onStatus = func(store.Status, error) {}
	}
	onStatus(store.StatusConnecting, nil)

	l := pq.NewListener(c.dsn, c.minReconnect, c.maxReconnect, func(ev pq.ListenerEventType, err error) {
		onStatus(statusFor(ev), err)
	})
	if err := l.Listen(c.channel); err != nil {
		_ = l.Close()
		return nil, errs.Network(op, err)
	}

	sub := &listenerSub{
		l:        l,
		done:     make(chan struct{}),
		onStatus: onStatus,
		log:      c.log,
	}
	go sub.run(ctx, filters, onChange)
	return sub, nil
}

type listenerSub struct {
	l        *pq.Listener
	done     chan struct{}
	once     sync.Once
	onStatus store.StatusHandler
	log      logger.Logger
}

func (s *listenerSub) run(ctx context.Context, filters []store.ChangeFilter, onChange store.ChangeHandler) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			_ = s.Close()
			return
		case n := <-s.l.Notify:
			if n == nil {
				// Connection was re-established; notifications sent meanwhile are lost.
				s.log.Warn(ctx, "listener reconnected, changes may have been missed")
				continue
			}
			change, err := decodeNotification(n.Extra)
			if err != nil {
				s.log.Error(ctx, "dropping malformed notification", logger.Error(err))
				continue
			}
			if change.Matches(filters) {
				onChange(change)
			}
		case <-ticker.C:
			go func() { _ = s.l.Ping() }()
		}
	}
}

func (s *listenerSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.l.Close()
		s.onStatus(store.StatusClosed, nil)
	})
	return err
}
