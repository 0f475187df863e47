package model

import "time"

// DefaultHotLeadThreshold is used when a lead row carries no threshold.
const DefaultHotLeadThreshold = 80

// LeadScore is the per-visitor aggregate maintained by the store.
type LeadScore struct {
	ID               string     `json:"id"`
	VisitorID        string     `json:"visitor_id"`
	CompanyDomain    string     `json:"company_domain,omitempty"`
	CompanyName      string     `json:"company_name,omitempty"`
	TotalScore       int        `json:"total_score"`
	HotLeadThreshold int        `json:"hot_lead_threshold"`
	IsHotLead        bool       `json:"is_hot_lead"`
	LastActivity     time.Time  `json:"last_activity"`
	FirstVisit       time.Time  `json:"first_visit"`
	VisitCount       int        `json:"visit_count"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Name             string     `json:"name,omitempty"`
	LeadStatus       string     `json:"lead_status"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	CRMSynced        bool       `json:"crm_synced"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Identified reports whether contact details have been captured.
func (l LeadScore) Identified() bool { return l.Email != "" || l.Phone != "" }

// DisplayName picks the most human label for notifications.
func (l LeadScore) DisplayName() string {
	switch {
	case l.Name != "":
		return l.Name
	case l.Email != "":
		return l.Email
	case l.CompanyDomain != "":
		return l.CompanyDomain
	}
	return l.VisitorID
}

// LeadUpdate is a partial update; nil fields are left untouched.
type LeadUpdate struct {
	Email            *string `json:"email,omitempty"`
	Phone            *string `json:"phone,omitempty"`
	Name             *string `json:"name,omitempty"`
	CompanyName      *string `json:"company_name,omitempty"`
	LeadStatus       *string `json:"lead_status,omitempty"`
	AssignedTo       *string `json:"assigned_to,omitempty"`
	CRMSynced        *bool   `json:"crm_synced,omitempty"`
	HotLeadThreshold *int    `json:"hot_lead_threshold,omitempty"`
}

// Empty reports whether no field is set.
func (u LeadUpdate) Empty() bool {
	return u.Email == nil && u.Phone == nil && u.Name == nil && u.CompanyName == nil &&
		u.LeadStatus == nil && u.AssignedTo == nil && u.CRMSynced == nil && u.HotLeadThreshold == nil
}

// DomainCount is one row of the top-domains breakdown.
type DomainCount struct {
	Domain string `json:"domain"`
	Events int    `json:"events"`
}

// Stats aggregates lead counts for dashboards.
type Stats struct {
	TotalLeads      int            `json:"total_leads"`
	HotLeads        int            `json:"hot_leads"`
	AverageScore    float64        `json:"average_score"`
	StatusBreakdown map[string]int `json:"status_breakdown"`
	TopDomains      []DomainCount  `json:"top_domains"`
}
