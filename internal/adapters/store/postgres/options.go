package postgres

import (
	"time"

	"github.com/okian/leadpulse/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithDSN sets the connection string used by the change listener.
func WithDSN(dsn string) Option {
	return func(c *Client) {
		c.dsn = dsn
	}
}

// WithChannel sets the NOTIFY channel carrying change events.
func WithChannel(channel string) Option {
	return func(c *Client) {
		if channel != "" {
			c.channel = channel
		}
	}
}

// WithReconnectInterval bounds the listener's own reconnect attempts.
func WithReconnectInterval(minInterval, maxInterval time.Duration) Option {
	return func(c *Client) {
		if minInterval > 0 && maxInterval >= minInterval {
			c.minReconnect = minInterval
			c.maxReconnect = maxInterval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}
