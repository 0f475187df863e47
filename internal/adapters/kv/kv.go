// Package kv provides small key/value persistence for process identity and
// long-lived cache entries.
package kv

import (
	"context"
	"time"
)

// KV is a string key to byte value store with optional expiry.
type KV interface {
	// Get returns ErrNotFound when key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteMatching removes every key containing substr and returns how many were removed.
	DeleteMatching(ctx context.Context, substr string) (int, error)
}
