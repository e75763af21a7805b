package tflite

import "github.com/okian/skincheck/pkg/logger"

// Option configures a Backend.
type Option func(*Backend)

// WithThreads sets interpreter threads (0 keeps the library default).
func WithThreads(n int) Option {
	return func(b *Backend) {
		if n >= 0 {
			b.threads = n
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}
