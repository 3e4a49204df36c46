package capsolver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option is a function that configures a Client.
type Option func(*Client)

// WithAPIBase sets the CapSolver API base URL.
func WithAPIBase(apiBase string) Option {
	return func(c *Client) {
		c.apiBase = apiBase
	}
}

// WithAppID sets the developer appId sent with every createTask call.
func WithAppID(appID string) Option {
	return func(c *Client) {
		c.appID = appID
	}
}

// WithAPIProxy sets the HTTP proxy for API requests. It is unrelated to the
// task proxy that the solver itself uses to reach the target site.
func WithAPIProxy(apiProxy string) Option {
	return func(c *Client) {
		c.apiProxy = apiProxy
	}
}

// WithTimeout sets the timeout of a single API round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithPolling overrides the per-task-type polling cadence for every solve.
func WithPolling(interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		c.policy = &PollPolicy{Interval: interval, MaxAttempts: maxAttempts}
	}
}

// WithLogger sets the logger. The default writes to stderr at info level.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics registers the client's collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = MustNewMetrics(reg)
	}
}

// WithClearanceCache enables caching of Cloudflare challenge solutions per
// host and proxy. Entries older than ttl are solved again.
func WithClearanceCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewClearanceCache(defaultCacheSize, ttl)
	}
}
