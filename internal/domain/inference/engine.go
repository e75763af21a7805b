// Package inference owns the loaded model: it compiles the asset once and
// runs forward passes whose intermediate tensors never outlive the call.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/metrics"
)

// Engine runs forward passes over an immutable ModelAsset.
type Engine struct {
	asset   *asset.ModelAsset
	net     Network
	tracker *tensor.Tracker
}

// NewEngine pairs a ready asset with its compiled network.
func NewEngine(a *asset.ModelAsset, net Network, tracker *tensor.Tracker) (*Engine, error) {
	if !a.Ready() || net == nil {
		return nil, fmt.Errorf("%w: engine needs a ready asset and a network", ErrModelUnavailable)
	}
	if tracker == nil {
		tracker = tensor.NewTracker(nil)
	}
	return &Engine{asset: a, net: net, tracker: tracker}, nil
}

// Ready reports whether Predict may be called.
func (e *Engine) Ready() bool {
	return e != nil && e.net != nil && e.asset.Ready()
}

// Labels returns a copy of the label list.
func (e *Engine) Labels() []string {
	if e == nil {
		return nil
	}
	return e.asset.Labels()
}

// Format returns the model format.
func (e *Engine) Format() string {
	if e == nil {
		return ""
	}
	return e.asset.Format()
}

// InputShape returns the accepted input shape.
func (e *Engine) InputShape() tensor.Shape { return e.net.InputShape() }

// OutputLen returns the declared output length.
func (e *Engine) OutputLen() int { return e.net.OutputLen() }

// Tracker returns the live-tensor counter shared with callers' scopes.
func (e *Engine) Tracker() *tensor.Tracker {
	if e == nil {
		return nil
	}
	return e.tracker
}

// Predict runs one forward pass. The caller keeps ownership of input; every
// tensor the pass allocates is released before Predict returns, on success
// and on failure alike. The returned vector is an independent copy.
func (e *Engine) Predict(ctx context.Context, input *tensor.Tensor) (model.OutputVector, error) {
	if !e.Ready() {
		return nil, ErrModelUnavailable
	}
	if input == nil || input.Released() {
		return nil, fmt.Errorf("%w: input tensor is nil or released", ErrShapeMismatch)
	}
	if want := e.net.InputShape(); !input.Shape().Equal(want) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrShapeMismatch, input.Shape(), want)
	}

	start := time.Now()
	scope := e.tracker.NewScope()
	defer scope.Release()

	out, err := e.net.Forward(ctx, scope, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if out == nil || out.Len() != e.net.OutputLen() {
		n := 0
		if out != nil {
			n = out.Len()
		}
		return nil, fmt.Errorf("%w: output has %d values, want %d", ErrInference, n, e.net.OutputLen())
	}

	vec := make(model.OutputVector, out.Len())
	copy(vec, out.Data())
	if err := vec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	metrics.RecordInferenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	return vec, nil
}

// Close releases the compiled network.
func (e *Engine) Close() error {
	if e == nil || e.net == nil {
		return nil
	}
	return e.net.Close()
}
