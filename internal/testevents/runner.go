package testevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/leadpulse/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	outputPermission    = 0600
)

// Run executes the complete journey simulation.
func Run(ctx context.Context, config *Config) error {
	_, err := run(ctx, config)
	return err
}

func run(ctx context.Context, config *Config) (*Stats, error) {
	if config.Visitors <= 0 {
		return nil, errors.New("visitors must be positive")
	}
	if config.HotShare < 0 || config.HotShare > 1 {
		return nil, errors.New("hot share must be between 0 and 1")
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}

	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting leadpulse journey test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("visitors", config.Visitors),
		logger.Float64("hotShare", config.HotShare),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Duration("wait", config.Wait),
		logger.String("logFile", config.LogFile),
		logger.Bool("verbose", config.Verbose))

	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	journeys, err := generateJourneys(ctx, config, stats)
	if err != nil {
		return stats, fmt.Errorf("journey generation failed: %w", err)
	}

	if config.OutputFile != "" {
		if err := saveJourneysToFile(ctx, config.OutputFile, journeys); err != nil {
			logger.Get().Warn(ctx, "failed to save journeys to file", logger.Error(err))
		}
	}

	if err := submitJourneys(ctx, config, journeys, stats); err != nil {
		return stats, fmt.Errorf("event submission failed: %w", err)
	}

	logger.Get().Info(ctx, "waiting for hot leads")
	hot, err := pollHotLeads(ctx, config, journeys)
	if err != nil {
		return stats, fmt.Errorf("hot lead retrieval failed: %w", err)
	}

	verifyErr := verifyResults(ctx, config, journeys, hot, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	logger.Get().Info(ctx, "test completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveJourneysToFile writes the generated journeys as indented JSON.
func saveJourneysToFile(ctx context.Context, filename string, journeys []Journey) error {
	if len(journeys) == 0 {
		return errors.New("no journeys to save")
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(journeys, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journeys: %w", err)
	}
	if err := os.WriteFile(filename, data, outputPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "journeys saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, eventsPerSecond float64

	if stats.EventsSubmitted > 0 {
		acceptRate = float64(stats.EventsAccepted) / float64(stats.EventsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("visitors", stats.Visitors),
		logger.Int("expectedHot", stats.ExpectedHot),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("eventsAccepted", stats.EventsAccepted),
		logger.Int("eventsThrottled", stats.EventsThrottled),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("hotFound", stats.HotFound),
		logger.Int("hotMissing", stats.HotMissing),
		logger.Int("hotUnexpected", stats.HotUnexpected),
		logger.Int("scoreMismatches", stats.ScoreMismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
