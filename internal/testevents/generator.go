package testevents

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/internal/domain/scoring"
	"github.com/okian/leadpulse/pkg/logger"
)

const (
	randomFloatDivisor = 1000000
	siteOrigin         = "https://www.example.com"
)

var domains = []string{ //nolint:gochecknoglobals // static sample data
	"acme.com", "globex.io", "initech.com", "umbrella.co", "hooli.xyz", "stark.industries", "wayne.enterprises",
}

var referrers = []string{ //nolint:gochecknoglobals // static sample data
	"https://www.google.com/", "https://www.linkedin.com/", "", "https://news.ycombinator.com/",
}

type step struct {
	eventType model.EventType
	path      string
	payload   map[string]any
}

// journeys by kind, in the order a visitor walks them.
var steps = map[string][]step{ //nolint:gochecknoglobals // static journey templates
	KindBrowser: {
		{eventType: model.EventPageView, path: "/blog/how-to-value-a-company"},
		{eventType: model.EventPageView, path: "/blog/ebitda-multiples"},
	},
	KindResearch: {
		{eventType: model.EventPageView, path: "/blog/how-to-value-a-company"},
		{eventType: model.EventPageView, path: "/pricing"},
		{eventType: model.EventCalculatorUse, path: "/calculator", payload: map[string]any{"revenue": 2_500_000}},
		{eventType: model.EventDownload, path: "/resources/case-study.pdf", payload: map[string]any{"resource": "case-study"}},
	},
	KindBuyer: {
		{eventType: model.EventPageView, path: "/blog/how-to-value-a-company"},
		{eventType: model.EventPageView, path: "/pricing"},
		{eventType: model.EventCalculatorUse, path: "/calculator", payload: map[string]any{"revenue": 12_000_000}},
		{eventType: model.EventDownload, path: "/resources/case-study.pdf", payload: map[string]any{"resource": "case-study"}},
		{eventType: model.EventFormFill, path: "/book-a-demo", payload: map[string]any{"form": "demo"}},
	},
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func pick[T any](xs []T) T {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(xs))))
	return xs[n.Int64()]
}

// kindFor maps a uniform draw to a journey kind. Buyers take hotShare of the
// draws and the rest is split evenly between research and browsing.
func kindFor(r, hotShare float64) string {
	switch {
	case r < hotShare:
		return KindBuyer
	case r < hotShare+(1-hotShare)/2:
		return KindResearch
	default:
		return KindBrowser
	}
}

// generateJourneys creates one journey per visitor.
func generateJourneys(ctx context.Context, config *Config, stats *Stats) ([]Journey, error) {
	logger.Get().Info(ctx, "generating visitor journeys", logger.Int("visitors", config.Visitors))

	rules := scoring.DefaultRules()
	journeys := make([]Journey, 0, config.Visitors)
	for i := 0; i < config.Visitors; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during journey generation: %w", err)
		}
		kind := kindFor(getRandomFloat(), config.HotShare)
		journeys = append(journeys, buildJourney(uuid.NewString(), pick(domains), kind, rules))
	}

	stats.Visitors = len(journeys)
	for _, j := range journeys {
		if j.Expected >= model.DefaultHotLeadThreshold {
			stats.ExpectedHot++
		}
	}
	logger.Get().Info(ctx, "generated journeys",
		logger.Int("count", len(journeys)), logger.Int("expectedHot", stats.ExpectedHot))
	return journeys, nil
}

// buildJourney lays out the events of one visitor and the score the default
// rules award them. Each step uses its own session so the server-side
// per-session cooldown never swallows a step.
func buildJourney(visitorID, domain, kind string, rules []model.ScoringRule) Journey {
	j := Journey{VisitorID: visitorID, CompanyDomain: domain, Kind: kind}
	referrer := pick(referrers)
	for i, s := range steps[kind] {
		j.Events = append(j.Events, Event{
			EventID:       uuid.NewString(),
			VisitorID:     visitorID,
			SessionID:     fmt.Sprintf("%s-%d", visitorID, i),
			CompanyDomain: domain,
			EventType:     string(s.eventType),
			PagePath:      s.path,
			PageURL:       siteOrigin + s.path + "?utm_source=simulator&utm_campaign=" + kind,
			Referrer:      referrer,
			Payload:       s.payload,
			TS:            time.Now().UTC().Format(time.RFC3339),
		})
		if r, ok := scoring.Match(rules, scoring.Input{EventType: s.eventType, PagePath: s.path}); ok {
			j.Expected += r.Points
		}
	}
	return j
}
