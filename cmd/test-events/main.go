package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/leadpulse/internal/testevents"
	"github.com/okian/leadpulse/pkg/logger"
)

// Default configuration constants.
const (
	defaultVisitors    = 200
	defaultHotShare    = 0.2
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultWait        = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		visitors   = flag.Int("visitors", defaultVisitors, "Number of simulated visitors")
		hotShare   = flag.Float64("hot-share", defaultHotShare, "Fraction of visitors walking a full buying journey")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait       = flag.Duration("wait", defaultWait, "How long to poll for the expected hot leads")
		outputFile = flag.String("output", "", "Write the generated journeys to this JSON file")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	if err := testevents.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	config := &testevents.Config{
		BaseURL:    *baseURL,
		Visitors:   *visitors,
		HotShare:   *hotShare,
		Workers:    *workers,
		Timeout:    *timeout,
		Wait:       *wait,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	if err := testevents.Run(ctx, config); err != nil {
		logger.Get().Error(ctx, "test failed", logger.Error(err))
		return
	}
}
