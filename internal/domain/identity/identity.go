// Package identity holds the process-wide visitor and session identifiers.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/okian/leadpulse/internal/adapters/kv"
)

// VisitorKey is where the visitor id is persisted.
const VisitorKey = "identity:visitor_id"

// Identity is a stable visitor id plus a session id unique to this load.
type Identity struct {
	VisitorID string
	SessionID string
}

// Load returns the persisted visitor id, creating and storing one on first
// use, and a fresh session id.
func Load(ctx context.Context, store kv.KV) (Identity, error) {
	id := Identity{SessionID: uuid.NewString()}

	b, err := store.Get(ctx, VisitorKey)
	switch {
	case err == nil && len(b) > 0:
		id.VisitorID = string(b)
		return id, nil
	case err != nil && !errors.Is(err, kv.ErrNotFound):
		return Identity{}, fmt.Errorf("load visitor id: %w", err)
	}

	id.VisitorID = uuid.NewString()
	if err := store.Set(ctx, VisitorKey, []byte(id.VisitorID), 0); err != nil {
		return Identity{}, fmt.Errorf("persist visitor id: %w", err)
	}
	return id, nil
}
