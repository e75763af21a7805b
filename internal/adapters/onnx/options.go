package onnx

import "github.com/okian/skincheck/pkg/logger"

// Option configures a Backend.
type Option func(*Backend)

// WithLibraryPath points at the onnxruntime shared library. When empty the
// usual system locations are probed.
func WithLibraryPath(path string) Option {
	return func(b *Backend) {
		b.libraryPath = path
	}
}

// WithThreads bounds intra-op parallelism (0 keeps the runtime default).
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
