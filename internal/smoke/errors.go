package smoke

import "errors"

var (
	// ErrUnhealthy reports a service that does not answer /healthz.
	ErrUnhealthy = errors.New("service unhealthy")

	// ErrNotReady reports a model that did not become ready in time.
	ErrNotReady = errors.New("model not ready")

	// ErrLoadFailed reports a model whose one-shot load failed.
	ErrLoadFailed = errors.New("model load failed")

	// ErrNoSamples reports an empty sample set.
	ErrNoSamples = errors.New("no sample images")

	// ErrTicketOrder reports a final submission that did not receive the
	// newest ticket.
	ErrTicketOrder = errors.New("ticket out of order")

	// ErrStaleResult reports a settled /result that is not the newest
	// submission's classification.
	ErrStaleResult = errors.New("stale result published")
)
