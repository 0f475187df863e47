package testevents

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/okian/leadpulse/pkg/logger"
)

// SetupLogging sends logs to stdout and to logFile, rotated by lumberjack.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "test_log_" + time.Now().Format("20060102_150405") + ".log"
	}

	if err := logger.Init(logger.WithFile(logFile)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return fmt.Errorf("failed to set log level: %w", err)
		}
	}

	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the journey simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`LeadPulse Journey Simulator
===========================

Generates synthetic visitor journeys, posts their events to a running
LeadPulse service and checks that the visitors who walked a full buying
journey show up as hot leads.

Usage:
  go run cmd/test-events/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -visitors int
        Number of simulated visitors (default 200)
  -hot-share float
        Fraction of visitors walking a full buying journey (default 0.2)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -wait duration
        How long to poll /leads/hot for the expected hot leads (default 30s)
  -output string
        Write the generated journeys to this JSON file
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/test-events/main.go

  # Mostly buyers against a local instance
  go run cmd/test-events/main.go -visitors 1000 -hot-share 0.6 -url http://localhost:8080

  # Keep the journeys for inspection
  go run cmd/test-events/main.go -output journeys.json -verbose
`)
}
