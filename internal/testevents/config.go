package testevents

import "time"

// Config holds configuration for the journey simulation.
type Config struct {
	BaseURL    string        // Base URL of the service
	Visitors   int           // Number of simulated visitors
	HotShare   float64       // Fraction of visitors walking a full buying journey
	Workers    int           // Number of concurrent submitters
	Timeout    time.Duration // HTTP request timeout
	Wait       time.Duration // How long to poll for hot leads
	OutputFile string        // Output file for generated journeys
	LogFile    string        // Log file for test output
	Verbose    bool          // Enable verbose logging
}

// Event mirrors the POST /events payload.
type Event struct {
	EventID       string         `json:"event_id"`
	VisitorID     string         `json:"visitor_id"`
	SessionID     string         `json:"session_id"`
	CompanyDomain string         `json:"company_domain,omitempty"`
	EventType     string         `json:"event_type"`
	PagePath      string         `json:"page_path"`
	PageURL       string         `json:"page_url,omitempty"`
	Referrer      string         `json:"referrer,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	TS            string         `json:"ts"`
}

// Journey is the ordered events of one visitor and the score they should earn.
type Journey struct {
	VisitorID     string  `json:"visitor_id"`
	CompanyDomain string  `json:"company_domain"`
	Kind          string  `json:"kind"`
	Expected      int     `json:"expected_score"`
	Events        []Event `json:"events"`
}

// Lead is the subset of a lead score the simulator checks.
type Lead struct {
	VisitorID     string `json:"visitor_id"`
	CompanyDomain string `json:"company_domain"`
	TotalScore    int    `json:"total_score"`
	IsHotLead     bool   `json:"is_hot_lead"`
}

// Stats holds test statistics.
type Stats struct {
	Visitors        int
	ExpectedHot     int
	EventsSubmitted int
	EventsAccepted  int
	EventsThrottled int
	EventsFailed    int
	HotFound        int
	HotMissing      int
	HotUnexpected   int
	ScoreMismatches int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
