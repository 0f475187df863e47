package testevents

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/leadpulse/internal/domain/model"
	"github.com/okian/leadpulse/pkg/logger"
)

// pollHotLeads fetches GET /leads/hot until every expected hot visitor shows
// up or config.Wait elapses. It returns the last list it saw.
func pollHotLeads(ctx context.Context, config *Config, journeys []Journey) ([]Lead, error) {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/leads/hot"
	want := expectedHot(journeys)

	deadline := time.Now().Add(config.Wait)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var (
		last    []Lead
		lastErr error
	)
	for {
		var leads []Lead
		if err := client.getJSON(ctx, url, &leads); err != nil {
			lastErr = err
			logger.Get().Debug(ctx, "hot lead poll failed", logger.Error(err))
		} else {
			last, lastErr = leads, nil
			if containsAll(leads, want) {
				return last, nil
			}
		}
		if !time.Now().Before(deadline) {
			if last == nil && lastErr != nil {
				return nil, fmt.Errorf("failed to fetch hot leads: %w", lastErr)
			}
			return last, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// expectedHot returns the journeys whose score reaches the default threshold,
// keyed by visitor.
func expectedHot(journeys []Journey) map[string]Journey {
	want := make(map[string]Journey)
	for _, j := range journeys {
		if j.Expected >= model.DefaultHotLeadThreshold {
			want[j.VisitorID] = j
		}
	}
	return want
}

func containsAll(leads []Lead, want map[string]Journey) bool {
	seen := make(map[string]struct{}, len(leads))
	for _, l := range leads {
		seen[l.VisitorID] = struct{}{}
	}
	for id := range want {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

// verifyResults compares the hot leads the service reports with the journeys
// that were generated. Leads from visitors outside this run are ignored.
func verifyResults(ctx context.Context, config *Config, journeys []Journey, hot []Lead, stats *Stats) error {
	log := logger.Get()
	byVisitor := make(map[string]Journey, len(journeys))
	for _, j := range journeys {
		byVisitor[j.VisitorID] = j
	}
	want := expectedHot(journeys)

	found := make(map[string]struct{}, len(hot))
	for _, l := range hot {
		j, ours := byVisitor[l.VisitorID]
		if !ours {
			continue
		}
		found[l.VisitorID] = struct{}{}
		if _, ok := want[l.VisitorID]; !ok {
			stats.HotUnexpected++
		} else {
			stats.HotFound++
		}
		if l.TotalScore != j.Expected {
			stats.ScoreMismatches++
			if config.Verbose {
				log.Warn(ctx, "score mismatch",
					logger.String("visitorID", l.VisitorID),
					logger.Int("expected", j.Expected),
					logger.Int("actual", l.TotalScore))
			}
		}
	}

	var missing []string
	for id := range want {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	stats.HotMissing = len(missing)

	displayHotLeads(ctx, hot, byVisitor, config.Verbose)

	if len(missing) > 0 {
		return fmt.Errorf("%d expected hot leads missing (first: %s)", len(missing), missing[0])
	}
	if stats.HotUnexpected > 0 {
		return fmt.Errorf("%d unexpected hot leads", stats.HotUnexpected)
	}
	log.Info(ctx, "hot leads verified", logger.Int("found", stats.HotFound))
	return nil
}

// displayHotLeads logs this run's hot leads, highest score first.
func displayHotLeads(ctx context.Context, hot []Lead, ours map[string]Journey, verbose bool) {
	var mine []Lead
	for _, l := range hot {
		if _, ok := ours[l.VisitorID]; ok {
			mine = append(mine, l)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].TotalScore > mine[j].TotalScore })

	limit := len(mine)
	if !verbose && limit > displayLimit {
		limit = displayLimit
	}
	for _, l := range mine[:limit] {
		logger.Get().Info(ctx, "hot lead",
			logger.String("visitorID", l.VisitorID),
			logger.String("company", l.CompanyDomain),
			logger.Int("score", l.TotalScore))
	}
}
