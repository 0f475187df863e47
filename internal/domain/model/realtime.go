package model

import "time"

// UpdateKind classifies a realtime update.
type UpdateKind string

const (
	UpdateNewLead  UpdateKind = "new_lead"
	UpdateHotLead  UpdateKind = "hot_lead"
	UpdateNewAlert UpdateKind = "new_alert"
)

// RealtimeUpdate is retained for late UI consumers.
type RealtimeUpdate struct {
	Kind  UpdateKind `json:"kind"`
	Lead  *LeadScore `json:"lead,omitempty"`
	Alert *Alert     `json:"alert,omitempty"`
	At    time.Time  `json:"at"`
}

// Notification is a user-facing message.
type Notification struct {
	Kind     UpdateKind `json:"kind"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	Priority Priority   `json:"priority"`
	At       time.Time  `json:"at"`
}
