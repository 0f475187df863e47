package cache

import (
	"fmt"
	"strings"
	"time"
)

// Tier groups cache entries by how volatile their data is.
type Tier int

const (
	TierCritical Tier = iota
	TierImportant
	TierStatic
	TierPersistent
)

type tierPolicy struct {
	name    string
	ttl     time.Duration // staleness: entries older than this are a miss
	gc      time.Duration // entries older than this are dropped when touched
	retries int           // fetch retries after the first attempt
}

var policies = [...]tierPolicy{ //nolint:gochecknoglobals // fixed tier table
	TierCritical:   {name: "critical", ttl: 30 * time.Second, gc: 60 * time.Second, retries: 3},
	TierImportant:  {name: "important", ttl: 120 * time.Second, gc: 300 * time.Second, retries: 2},
	TierStatic:     {name: "static", ttl: 600 * time.Second, gc: 1800 * time.Second, retries: 1},
	TierPersistent: {name: "persistent", ttl: 3600 * time.Second, gc: 86400 * time.Second, retries: 1},
}

func (t Tier) policy() tierPolicy {
	if t < TierCritical || t > TierPersistent {
		return policies[TierCritical]
	}
	return policies[t]
}

// String implements fmt.Stringer.
func (t Tier) String() string { return t.policy().name }

// TTL is how long entries of the tier stay fresh.
func (t Tier) TTL() time.Duration { return t.policy().ttl }

// GCHorizon is how long stale entries of the tier may linger before removal.
func (t Tier) GCHorizon() time.Duration { return t.policy().gc }

// Retries is how many times a failed fetch is retried.
func (t Tier) Retries() int { return t.policy().retries }

// ParseTier accepts critical, important, static and persistent.
func ParseTier(s string) (Tier, error) {
	for t, p := range policies {
		if strings.EqualFold(s, p.name) {
			return Tier(t), nil
		}
	}
	return TierCritical, fmt.Errorf("unknown cache tier %q", s)
}
