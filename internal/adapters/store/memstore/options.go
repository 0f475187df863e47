package memstore

import (
	"time"

	"github.com/okian/leadpulse/internal/adapters/store"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHotLeadThreshold sets the threshold given to newly created leads.
func WithHotLeadThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithDeniedRelations makes every call on rels fail with a permission error.
func WithDeniedRelations(rels ...store.Relation) Option {
	return func(s *Store) {
		for _, r := range rels {
			s.denied[r] = true
		}
	}
}
