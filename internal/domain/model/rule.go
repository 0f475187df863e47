package model

// ScoringRule maps an event type (and optional page pattern) to points.
type ScoringRule struct {
	ID          string    `json:"id"`
	Name        string    `json:"rule_name"`
	TriggerType EventType `json:"trigger_type"`
	// PagePattern is a SQL-LIKE pattern ("%" any run, "_" one char), matched
	// case-insensitively against the whole path. Empty matches any path.
	PagePattern  string   `json:"page_pattern,omitempty"`
	Points       int      `json:"points"`
	Active       bool     `json:"is_active"`
	DecayDays    int      `json:"decay_days,omitempty"`
	Industries   []string `json:"industry_filter,omitempty"`
	CompanySizes []string `json:"company_size_filter,omitempty"`
}
