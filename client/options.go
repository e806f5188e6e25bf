package client

import (
	"log/slog"
	"net/http"

	"github.com/svetoslav0421/nocode-claude-ai/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnect makes subscriptions redial after the stream drops, up to
// maxRetries consecutive failures spaced by bo.
func WithReconnect(maxRetries int, bo backoff.Strategy) Option {
	return func(c *Client) {
		c.reconnect = true
		c.maxRetries = maxRetries
		if bo != nil {
			c.backoff = bo
		}
	}
}
