package weather

import (
	"net/http"
	"time"

	"github.com/okian/skincheck/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithCacheTTL sets how long an advisory is reused for the same location.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cl *Client) {
		if ttl > 0 {
			cl.ttl = ttl
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}
