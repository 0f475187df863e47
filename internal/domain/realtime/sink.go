package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/containrrr/shoutrrr"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
)

// Sink delivers user-facing notifications.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n model.Notification) error
}

// LogSink writes notifications to the log.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a LogSink. A nil logger uses the global one.
func NewLogSink(log logger.Logger) *LogSink {
	if log == nil {
		log = logger.Get().Named("notifications")
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(ctx context.Context, n model.Notification) error {
	s.log.Info(ctx, n.Title,
		logger.String("kind", string(n.Kind)),
		logger.String("priority", n.Priority.String()),
		logger.String("message", n.Message))
	return nil
}

// ShoutrrrSink sends notifications to shoutrrr service URLs (slack://,
// discord://, generic+https:// and the like).
type ShoutrrrSink struct {
	URLs []string
	Send func(url, message string) error
}

// NewShoutrrrSink creates a sink sending to every url.
func NewShoutrrrSink(urls ...string) *ShoutrrrSink {
	return &ShoutrrrSink{URLs: urls, Send: shoutrrr.Send}
}

func (s *ShoutrrrSink) Name() string { return "shoutrrr" }

// Notify sends to every URL and joins the failures.
func (s *ShoutrrrSink) Notify(_ context.Context, n model.Notification) error {
	msg := fmt.Sprintf("%s\n\n%s", n.Title, n.Message)
	var errList []error
	for _, url := range s.URLs {
		if err := s.Send(url, msg); err != nil {
			errList = append(errList, fmt.Errorf("send to %s: %w", redact(url), err))
		}
	}
	return errors.Join(errList...)
}

// redact keeps only the scheme of a service URL; the rest usually holds tokens.
func redact(url string) string {
	for i := 0; i+2 < len(url); i++ {
		if url[i:i+3] == "://" {
			return url[:i+3] + "***"
		}
	}
	return "***"
}

// MemorySink keeps the latest notifications for UIs that poll.
type MemorySink struct {
	size int

	mu    sync.Mutex
	items []model.Notification
}

// NewMemorySink keeps up to size notifications.
func NewMemorySink(size int) *MemorySink {
	if size <= 0 {
		size = 50
	}
	return &MemorySink{size: size}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Notify(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	if len(s.items) > s.size {
		s.items = append([]model.Notification(nil), s.items[len(s.items)-s.size:]...)
	}
	return nil
}

// Notifications returns the kept notifications, newest first.
func (s *MemorySink) Notifications() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.items))
	for i, n := range s.items {
		out[len(s.items)-1-i] = n
	}
	return out
}
