package leads

import (
	"github.com/okian/leadpulse/internal/cache"
	"github.com/okian/leadpulse/pkg/logger"
)

// Option configures a Service.
type Option func(*Service)

// WithInvalidator overrides the invalidator run after writes.
func WithInvalidator(inv *cache.Invalidator) Option {
	return func(s *Service) {
		if inv != nil {
			s.inv = inv
		}
	}
}

// WithTopDomains sets how many domains Stats reports.
func WithTopDomains(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.topDomains = n
		}
	}
}

// WithAlertLimit bounds how many alerts ListAlerts returns.
func WithAlertLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.alertLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}
