package inference

import (
	"time"

	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFetchTimeout bounds the whole fetch and compile step.
func WithFetchTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithTracker sets the live-tensor counter handed to the engine.
func WithTracker(tr *tensor.Tracker) LoaderOption {
	return func(l *Loader) {
		if tr != nil {
			l.tracker = tr
		}
	}
}

// WithLogger sets the loader logger.
func WithLogger(lg logger.Logger) LoaderOption {
	return func(l *Loader) {
		if lg != nil {
			l.log = lg
		}
	}
}
