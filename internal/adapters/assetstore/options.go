package assetstore

import (
	"net/http"
	"time"

	"github.com/okian/skincheck/pkg/logger"
)

// Option configures an HTTPStore.
type Option func(*HTTPStore)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBytes caps the size of any single blob.
func WithMaxBytes(n int64) Option {
	return func(s *HTTPStore) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *HTTPStore) {
		if l != nil {
			s.log = l
		}
	}
}
