package pipeline

import (
	"context"
	"sync"

	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/resolve"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// Session is the last-request-wins display state. Every request takes a
// ticket from Begin; only the newest ticket may publish its result.
type Session struct {
	model Model
	log   logger.Logger

	mu      sync.Mutex
	latest  uint64
	current model.ClassificationResult
}

// NewSession creates a Session that shows the model state until the first
// request begins.
func NewSession(m Model, opts ...SessionOption) *Session {
	s := &Session{model: m}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("session")
	}
	return s
}

// Begin issues a new ticket and shows the in-progress state. Any result
// still in flight for an older ticket will be discarded.
func (s *Session) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	s.current = resolve.Analyzing()
	return s.latest
}

// Complete publishes res if ticket is still the newest. It reports whether
// the result was published.
func (s *Session) Complete(ctx context.Context, ticket uint64, res model.ClassificationResult) bool {
	s.mu.Lock()
	latest := s.latest
	if ticket == latest {
		s.current = res
	}
	s.mu.Unlock()

	if ticket != latest {
		metrics.RecordStaleResultDiscarded()
		s.log.Debug(ctx, "stale result discarded",
			logger.Uint64("ticket", ticket),
			logger.Uint64("latest", latest))
		return false
	}
	return true
}

// IsLatest reports whether ticket is still the newest request.
func (s *Session) IsLatest(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ticket == s.latest
}

// Latest returns the newest ticket issued, zero before the first request.
func (s *Session) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Current returns what the user should see now.
func (s *Session) Current() model.ClassificationResult {
	s.mu.Lock()
	started := s.latest > 0
	cur := s.current
	s.mu.Unlock()

	if eng := s.model.Engine(); eng == nil || !eng.Ready() {
		return NotReady(s.model)
	}
	if !started {
		return resolve.Ready()
	}
	return cur
}

// Run classifies data under a fresh ticket and publishes the result if no
// newer request began meanwhile.
func (s *Session) Run(ctx context.Context, p *Pipeline, data []byte) (model.ClassificationResult, bool, error) {
	ticket := s.Begin()
	res, err := p.Classify(ctx, data)
	return res, s.Complete(ctx, ticket, res), err
}
