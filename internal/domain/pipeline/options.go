package pipeline

import (
	"github.com/okian/skincheck/internal/domain/resolve"
	"github.com/okian/skincheck/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver overrides the result resolver.
func WithResolver(r *resolve.Resolver) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l logger.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}
