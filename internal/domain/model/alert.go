package model

import (
	"fmt"
	"strings"
	"time"
)

// Priority of an Alert.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "low"
}

// ParsePriority is case-insensitive. Unknown values are an error.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "", "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	}
	return PriorityLow, fmt.Errorf("unknown priority %q", s)
}

// IsUrgent reports whether alerts of this priority notify immediately.
func (p Priority) IsUrgent() bool { return p >= PriorityHigh }

// MarshalText implements encoding.TextMarshaler.
func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Alert type emitted by the store when a lead turns hot.
const AlertTypeHotLead = "hot_lead"

// Alert is raised against a lead score. Only IsRead ever changes.
type Alert struct {
	ID               string    `json:"id"`
	LeadScoreID      string    `json:"lead_score_id"`
	AlertType        string    `json:"alert_type"`
	ThresholdReached *int      `json:"threshold_reached,omitempty"`
	Message          string    `json:"message"`
	Priority         Priority  `json:"priority"`
	IsRead           bool      `json:"is_read"`
	CreatedAt        time.Time `json:"created_at"`
}
