package testevents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/okian/leadpulse/pkg/logger"
)

// errThrottled marks a 429 answer so the submitter can retry it.
var errThrottled = errors.New("throttled")

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON fetches url and decodes a 200 answer into v.
func (c *HTTPClient) getJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// submitJourneys posts every journey's events. Journeys are spread across
// workers; the events of one journey are sent in order by a single worker.
func submitJourneys(ctx context.Context, config *Config, journeys []Journey, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "submitting journeys",
		logger.Int("journeys", len(journeys)), logger.Int("workers", config.Workers))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/events"

	var submitted, accepted, throttled, failed int64

	journeyChan := make(chan Journey, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range journeyChan {
				for _, ev := range j.Events {
					if ctx.Err() != nil {
						return
					}
					atomic.AddInt64(&submitted, 1)
					retries, err := submitEvent(ctx, client, url, ev)
					atomic.AddInt64(&throttled, int64(retries))
					if err != nil {
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Warn(ctx, "event rejected",
								logger.String("visitorID", ev.VisitorID),
								logger.String("eventType", ev.EventType),
								logger.Error(err))
						}
						continue
					}
					atomic.AddInt64(&accepted, 1)
				}
			}
		}()
	}

	go func() {
		defer close(journeyChan)
		for _, j := range journeys {
			select {
			case <-ctx.Done():
				return
			case journeyChan <- j:
			}
		}
	}()

	wg.Wait()

	stats.EventsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.EventsAccepted = int(atomic.LoadInt64(&accepted))
	stats.EventsThrottled = int(atomic.LoadInt64(&throttled))
	stats.EventsFailed = int(atomic.LoadInt64(&failed))

	log.Info(ctx, "event submission completed",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("throttled", stats.EventsThrottled),
		logger.Int("failed", stats.EventsFailed))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submission interrupted: %w", err)
	}
	return nil
}

// submitEvent posts one event, retrying 429 answers with exponential
// backoff. It returns how many throttled answers were seen.
func submitEvent(ctx context.Context, client *HTTPClient, url string, ev Event) (int, error) {
	var retries int
	op := func() (struct{}, error) {
		resp, err := client.Post(ctx, url, ev)
		if err != nil {
			return struct{}{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch resp.StatusCode {
		case StatusAccepted:
			return struct{}{}, nil
		case StatusTooManyRequests:
			retries++
			return struct{}{}, errThrottled
		default:
			return struct{}{}, backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(maxSubmitTries))
	return retries, err
}
