// Package model contains domain models passed between layers.
package model

import (
	"net/url"
	"strings"
	"time"
)

// EventType names a visitor interaction. Values outside the known set are
// valid; rules may target any string.
type EventType string

// Known event types.
const (
	EventPageView      EventType = "page_view"
	EventCalculatorUse EventType = "calculator_use"
	EventFormFill      EventType = "form_fill"
	EventDownload      EventType = "download"
	EventTimeOnSite    EventType = "time_on_site"
)

// Known reports whether t is one of the built-in event types.
func (t EventType) Known() bool {
	switch t {
	case EventPageView, EventCalculatorUse, EventFormFill, EventDownload, EventTimeOnSite:
		return true
	}
	return false
}

// Attribution captures where a visitor came from.
type Attribution struct {
	UserAgent   string `json:"user_agent,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
}

// ParseAttribution reads UTM parameters from the query string of pageURL.
// An unparsable URL yields attribution without UTM fields.
func ParseAttribution(pageURL, referrer, userAgent string) Attribution {
	a := Attribution{UserAgent: userAgent, Referrer: referrer}
	if pageURL == "" {
		return a
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return a
	}
	q := u.Query()
	a.UTMSource = q.Get("utm_source")
	a.UTMMedium = q.Get("utm_medium")
	a.UTMCampaign = q.Get("utm_campaign")
	a.UTMTerm = q.Get("utm_term")
	a.UTMContent = q.Get("utm_content")
	return a
}

// BehaviorEvent is a single recorded interaction. Append-only.
type BehaviorEvent struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	VisitorID     string         `json:"visitor_id"`
	CompanyDomain string         `json:"company_domain,omitempty"`
	EventType     EventType      `json:"event_type"`
	PagePath      string         `json:"page_path,omitempty"`
	Payload       map[string]any `json:"event_data,omitempty"`
	PointsAwarded int            `json:"points_awarded"`
	RuleID        string         `json:"rule_id,omitempty"`
	Attribution
	CreatedAt time.Time `json:"created_at"`
}

// TrackRequest is what a client submits for one interaction.
type TrackRequest struct {
	EventID       string // optional client id; retried submissions reuse it
	VisitorID     string
	SessionID     string
	CompanyDomain string
	EventType     EventType
	PagePath      string
	PageURL       string // full URL; UTM parameters are read from it
	Referrer      string
	UserAgent     string
	Payload       map[string]any
	TS            time.Time
}

// Normalize trims identifiers and lower-cases the company domain.
func (r *TrackRequest) Normalize() {
	r.EventID = strings.TrimSpace(r.EventID)
	r.VisitorID = strings.TrimSpace(r.VisitorID)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.CompanyDomain = strings.ToLower(strings.TrimSpace(r.CompanyDomain))
	r.EventType = EventType(strings.TrimSpace(string(r.EventType)))
	if r.PagePath == "" && r.PageURL != "" {
		if u, err := url.Parse(r.PageURL); err == nil {
			r.PagePath = u.Path
		}
	}
}

// PayloadString returns payload[key] when it is a string.
func (r *TrackRequest) PayloadString(key string) string {
	if r.Payload == nil {
		return ""
	}
	s, _ := r.Payload[key].(string)
	return s
}
