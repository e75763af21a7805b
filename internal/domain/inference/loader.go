package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// Status is the load state of a Loader.
type Status string

// Load states.
const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Loader fetches and compiles the model exactly once per instance. The load
// runs in the background and ignores cancellation of the context that
// started it; callers observe the outcome through Ready, Done or Wait.
type Loader struct {
	store   asset.Store
	layout  asset.Layout
	base    string
	backend Backend
	tracker *tensor.Tracker
	timeout time.Duration
	log     logger.Logger

	once sync.Once
	done chan struct{}

	// written once before done is closed
	engine *Engine
	err    error
}

// NewLoader creates a loader for the model at base.
func NewLoader(store asset.Store, layout asset.Layout, base string, backend Backend, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   store,
		layout:  layout,
		base:    base,
		backend: backend,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.tracker == nil {
		l.tracker = tensor.NewTracker(metrics.UpdateLiveTensors)
	}
	if l.log == nil {
		l.log = logger.Named("loader")
	}
	return l
}

// Start kicks off the load. Only the first call has any effect.
func (l *Loader) Start(ctx context.Context) {
	l.once.Do(func() {
		metrics.UpdateModelStatus(metrics.ModelStatusLoading)
		go l.load(context.WithoutCancel(ctx))
	})
}

// Load starts the load if needed and waits for it.
func (l *Loader) Load(ctx context.Context) (*Engine, error) {
	l.Start(ctx)
	if err := l.Wait(ctx); err != nil {
		return nil, err
	}
	return l.engine, l.err
}

func (l *Loader) load(ctx context.Context) {
	defer close(l.done)
	start := time.Now()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.engine, l.err = l.build(ctx)
	elapsed := time.Since(start)
	metrics.UpdateModelLoadDuration(float64(elapsed.Milliseconds()))

	if l.err != nil {
		metrics.UpdateModelStatus(metrics.ModelStatusFailed)
		metrics.RecordErrorByComponent("loader", "model_unavailable")
		l.log.Error(ctx, "model load failed",
			logger.String("base", l.base),
			logger.String("format", l.layout.Format),
			logger.Error(l.err))
		return
	}

	metrics.UpdateModelStatus(metrics.ModelStatusReady)
	metrics.UpdateModelLabels(l.engine.asset.NumLabels())
	l.log.Info(ctx, "model ready",
		logger.String("format", l.layout.Format),
		logger.String("backend", l.backend.Name()),
		logger.Int("labels", l.engine.asset.NumLabels()),
		logger.Duration("elapsed", elapsed))
}

func (l *Loader) build(ctx context.Context) (*Engine, error) {
	a, err := asset.Fetch(ctx, l.store, l.layout, l.base)
	if err != nil {
		return nil, err
	}

	net, err := l.backend.Compile(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %w", ErrModelUnavailable, l.backend.Name(), err)
	}

	if net.OutputLen() != a.NumLabels() {
		metrics.RecordConsistencyAnomaly()
		l.log.Warn(ctx, "label count does not match model outputs",
			logger.Int("labels", a.NumLabels()),
			logger.Int("outputs", net.OutputLen()))
	}

	eng, err := NewEngine(a, net, l.tracker)
	if err != nil {
		_ = net.Close()
		return nil, err
	}
	return eng, nil
}

// Done is closed once the load has finished, successfully or not.
func (l *Loader) Done() <-chan struct{} { return l.done }

// Wait blocks until the load finishes or ctx is done. It returns the load
// error or the context error.
func (l *Loader) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the engine is loaded and usable.
func (l *Loader) Ready() bool {
	select {
	case <-l.done:
		return l.err == nil && l.engine.Ready()
	default:
		return false
	}
}

// Engine returns the loaded engine, or nil until Ready.
func (l *Loader) Engine() *Engine {
	if !l.Ready() {
		return nil
	}
	return l.engine
}

// Err returns the load error once the load has failed.
func (l *Loader) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Status returns the current load state.
func (l *Loader) Status() Status {
	select {
	case <-l.done:
		if l.err != nil {
			return StatusFailed
		}
		return StatusReady
	default:
		return StatusLoading
	}
}

// Format returns the configured model format.
func (l *Loader) Format() string { return l.layout.Format }

// Tracker returns the live-tensor counter.
func (l *Loader) Tracker() *tensor.Tracker { return l.tracker }

// Close releases the engine once the load has finished.
func (l *Loader) Close() error {
	if e := l.Engine(); e != nil {
		return e.Close()
	}
	return nil
}
