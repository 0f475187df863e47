package store

import (
	"github.com/okian/leadpulse/internal/domain/model"
)

// RuleFromRow decodes a lead_scoring_rules row.
func RuleFromRow(r Row) model.ScoringRule {
	return model.ScoringRule{
		ID:           r.String("id"),
		Name:         r.String("rule_name"),
		TriggerType:  model.EventType(r.String("trigger_type")),
		PagePattern:  r.String("page_pattern"),
		Points:       r.Int("points"),
		Active:       r.Bool("is_active"),
		DecayDays:    r.Int("decay_days"),
		Industries:   r.Strings("industry_filter"),
		CompanySizes: r.Strings("company_size_filter"),
	}
}

// RuleRow encodes a rule for insertion.
func RuleRow(rule model.ScoringRule) Row {
	row := Row{
		"rule_name":    rule.Name,
		"trigger_type": string(rule.TriggerType),
		"points":       rule.Points,
		"is_active":    rule.Active,
	}
	if rule.ID != "" {
		row["id"] = rule.ID
	}
	if rule.PagePattern != "" {
		row["page_pattern"] = rule.PagePattern
	}
	if rule.DecayDays > 0 {
		row["decay_days"] = rule.DecayDays
	}
	if len(rule.Industries) > 0 {
		row["industry_filter"] = rule.Industries
	}
	if len(rule.CompanySizes) > 0 {
		row["company_size_filter"] = rule.CompanySizes
	}
	return row
}

// EventRow encodes a behavior event for insertion.
func EventRow(e model.BehaviorEvent) Row {
	row := Row{
		"id":             e.ID,
		"session_id":     e.SessionID,
		"visitor_id":     e.VisitorID,
		"event_type":     string(e.EventType),
		"page_path":      e.PagePath,
		"points_awarded": e.PointsAwarded,
		"created_at":     e.CreatedAt,
	}
	optional := map[string]string{
		"company_domain": e.CompanyDomain,
		"rule_id":        e.RuleID,
		"user_agent":     e.UserAgent,
		"referrer":       e.Referrer,
		"utm_source":     e.UTMSource,
		"utm_medium":     e.UTMMedium,
		"utm_campaign":   e.UTMCampaign,
		"utm_term":       e.UTMTerm,
		"utm_content":    e.UTMContent,
	}
	for col, v := range optional {
		if v != "" {
			row[col] = v
		}
	}
	if len(e.Payload) > 0 {
		row["event_data"] = e.Payload
	}
	return row
}

// EventFromRow decodes a lead_behavior_events row.
func EventFromRow(r Row) model.BehaviorEvent {
	return model.BehaviorEvent{
		ID:            r.String("id"),
		SessionID:     r.String("session_id"),
		VisitorID:     r.String("visitor_id"),
		CompanyDomain: r.String("company_domain"),
		EventType:     model.EventType(r.String("event_type")),
		PagePath:      r.String("page_path"),
		Payload:       r.Map("event_data"),
		PointsAwarded: r.Int("points_awarded"),
		RuleID:        r.String("rule_id"),
		Attribution: model.Attribution{
			UserAgent:   r.String("user_agent"),
			Referrer:    r.String("referrer"),
			UTMSource:   r.String("utm_source"),
			UTMMedium:   r.String("utm_medium"),
			UTMCampaign: r.String("utm_campaign"),
			UTMTerm:     r.String("utm_term"),
			UTMContent:  r.String("utm_content"),
		},
		CreatedAt: r.Time("created_at"),
	}
}

// LeadFromRow decodes a lead_scores row.
func LeadFromRow(r Row) model.LeadScore {
	threshold := r.Int("hot_lead_threshold")
	if threshold == 0 {
		threshold = model.DefaultHotLeadThreshold
	}
	return model.LeadScore{
		ID:               r.String("id"),
		VisitorID:        r.String("visitor_id"),
		CompanyDomain:    r.String("company_domain"),
		CompanyName:      r.String("company_name"),
		TotalScore:       r.Int("total_score"),
		HotLeadThreshold: threshold,
		IsHotLead:        r.Bool("is_hot_lead"),
		LastActivity:     r.Time("last_activity"),
		FirstVisit:       r.Time("first_visit"),
		VisitCount:       r.Int("visit_count"),
		Email:            r.String("email"),
		Phone:            r.String("phone"),
		Name:             r.String("name"),
		LeadStatus:       r.String("lead_status"),
		AssignedTo:       r.String("assigned_to"),
		CRMSynced:        r.Bool("crm_synced"),
		UpdatedAt:        r.TimePtr("updated_at"),
	}
}

// LeadRow encodes a lead score. Used to seed leads.
func LeadRow(l model.LeadScore) Row {
	row := Row{
		"visitor_id":         l.VisitorID,
		"total_score":        l.TotalScore,
		"hot_lead_threshold": l.HotLeadThreshold,
		"is_hot_lead":        l.IsHotLead,
		"visit_count":        l.VisitCount,
		"lead_status":        l.LeadStatus,
		"crm_synced":         l.CRMSynced,
	}
	if l.HotLeadThreshold == 0 {
		row["hot_lead_threshold"] = model.DefaultHotLeadThreshold
	}
	if l.LeadStatus == "" {
		row["lead_status"] = "active"
	}
	optional := map[string]string{
		"id":             l.ID,
		"company_domain": l.CompanyDomain,
		"company_name":   l.CompanyName,
		"email":          l.Email,
		"phone":          l.Phone,
		"name":           l.Name,
		"assigned_to":    l.AssignedTo,
	}
	for col, v := range optional {
		if v != "" {
			row[col] = v
		}
	}
	if !l.FirstVisit.IsZero() {
		row["first_visit"] = l.FirstVisit
	}
	if !l.LastActivity.IsZero() {
		row["last_activity"] = l.LastActivity
	}
	return row
}

// LeadPatch encodes the set fields of a partial lead update.
func LeadPatch(u model.LeadUpdate) Row {
	row := Row{}
	set := func(col string, v *string) {
		if v != nil {
			row[col] = *v
		}
	}
	set("email", u.Email)
	set("phone", u.Phone)
	set("name", u.Name)
	set("company_name", u.CompanyName)
	set("lead_status", u.LeadStatus)
	set("assigned_to", u.AssignedTo)
	if u.CRMSynced != nil {
		row["crm_synced"] = *u.CRMSynced
	}
	if u.HotLeadThreshold != nil {
		row["hot_lead_threshold"] = *u.HotLeadThreshold
	}
	return row
}

// AlertFromRow decodes a lead_alerts row. Unknown priorities read as medium.
func AlertFromRow(r Row) model.Alert {
	p, err := model.ParsePriority(r.String("priority"))
	if err != nil {
		p = model.PriorityMedium
	}
	return model.Alert{
		ID:               r.String("id"),
		LeadScoreID:      r.String("lead_score_id"),
		AlertType:        r.String("alert_type"),
		ThresholdReached: r.IntPtr("threshold_reached"),
		Message:          r.String("message"),
		Priority:         p,
		IsRead:           r.Bool("is_read"),
		CreatedAt:        r.Time("created_at"),
	}
}

// AlertRow encodes an alert for insertion.
func AlertRow(a model.Alert) Row {
	row := Row{
		"lead_score_id": a.LeadScoreID,
		"alert_type":    a.AlertType,
		"message":       a.Message,
		"priority":      a.Priority.String(),
		"is_read":       a.IsRead,
	}
	if a.ID != "" {
		row["id"] = a.ID
	}
	if a.ThresholdReached != nil {
		row["threshold_reached"] = *a.ThresholdReached
	}
	if !a.CreatedAt.IsZero() {
		row["created_at"] = a.CreatedAt
	}
	return row
}
