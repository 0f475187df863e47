package scoring

import (
	"context"
	"fmt"

	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/domain/model"
)

// Catalog rule ids. They are fixed uuids so seeded rows bind to uuid keys
// and stay stable across installs.
const (
	RuleDemoRequestID = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40001"
	RuleContactFormID = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40002"
	RuleCalculatorID  = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40003"
	RulePricingID     = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40004"
	RuleCaseStudyID   = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40005"
	RuleBlogID        = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40006"
	RuleEngagedID     = "0b5e3c1a-6f2d-4c57-9a1e-3d7f10a40007"
)

// DefaultRules is the catalog installed into an empty rules relation.
func DefaultRules() []model.ScoringRule {
	return []model.ScoringRule{
		{ID: RuleDemoRequestID, Name: "Demo request", TriggerType: model.EventFormFill, PagePattern: "%demo%", Points: 40, Active: true},
		{ID: RuleContactFormID, Name: "Contact form", TriggerType: model.EventFormFill, Points: 25, Active: true},
		{ID: RuleCalculatorID, Name: "Valuation calculator", TriggerType: model.EventCalculatorUse, Points: 15, Active: true},
		{ID: RulePricingID, Name: "Pricing page", TriggerType: model.EventPageView, PagePattern: "/pricing%", Points: 10, Active: true},
		{ID: RuleCaseStudyID, Name: "Case study download", TriggerType: model.EventDownload, Points: 10, Active: true},
		{ID: RuleBlogID, Name: "Blog read", TriggerType: model.EventPageView, PagePattern: "/blog%", Points: 5, Active: true},
		{ID: RuleEngagedID, Name: "Engaged session", TriggerType: model.EventTimeOnSite, Points: 5, Active: true},
	}
}

// Seed inserts rules when the rules relation holds none and returns how many
// were written.
func Seed(ctx context.Context, client store.Client, rules []model.ScoringRule) (int, error) {
	existing, err := client.Select(ctx, store.Query{Relation: store.RelRules, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("seed rules: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for i, r := range rules {
		if _, err := client.Insert(ctx, store.RelRules, store.RuleRow(r)); err != nil {
			return i, fmt.Errorf("seed rule %s: %w", r.ID, err)
		}
	}
	return len(rules), nil
}
