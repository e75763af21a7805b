// Package pipeline runs decode, prepare, predict and resolve as one
// sequential unit and keeps the last-request-wins display state.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/preprocess"
	"github.com/okian/skincheck/internal/domain/resolve"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// Decoder turns encoded bytes into a RawImage.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (model.RawImage, error)
}

// Model exposes the load state and, once ready, the engine.
// *inference.Loader implements it.
type Model interface {
	Status() inference.Status
	Engine() *inference.Engine
}

// Pipeline classifies one image per call. It holds no per-call state and
// may be shared.
type Pipeline struct {
	model    Model
	decoder  Decoder
	resolver *resolve.Resolver
	log      logger.Logger
}

// New creates a Pipeline.
func New(m Model, d Decoder, opts ...Option) *Pipeline {
	p := &Pipeline{model: m, decoder: d}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("pipeline")
	}
	if p.resolver == nil {
		p.resolver = resolve.New(p.log)
	}
	return p
}

// NotReady returns the display result for a model that cannot serve yet.
func NotReady(m Model) model.ClassificationResult {
	if m.Status() == inference.StatusFailed {
		return resolve.LoadFailed()
	}
	return resolve.Loading()
}

// Classify runs the four stages in order. When the model is not ready it
// returns the not-ready result and ErrModelUnavailable without touching
// the image. Once started the unit runs to completion; a caller that no
// longer wants the result simply drops it.
func (p *Pipeline) Classify(ctx context.Context, data []byte) (model.ClassificationResult, error) {
	eng := p.model.Engine()
	if eng == nil || !eng.Ready() {
		metrics.RecordClassification("not_ready")
		return NotReady(p.model), inference.ErrModelUnavailable
	}
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	stage := time.Now()
	raw, err := p.decoder.Decode(ctx, data)
	p.observe("decode", stage)
	if err != nil {
		return p.fail(ctx, "decode_error", err)
	}

	scope := eng.Tracker().NewScope()
	defer scope.Release()

	stage = time.Now()
	input, err := preprocess.Prepare(scope, raw)
	p.observe("prepare", stage)
	if err != nil {
		return p.fail(ctx, "preprocess_error", err)
	}

	stage = time.Now()
	vec, err := eng.Predict(ctx, input)
	p.observe("predict", stage)
	if err != nil {
		return p.fail(ctx, kindOf(err), err)
	}

	stage = time.Now()
	res := p.resolver.Resolve(ctx, vec, eng.Labels())
	p.observe("resolve", stage)

	metrics.RecordClassification("success")
	p.log.Info(ctx, "image classified",
		logger.String("label", res.Label),
		logger.Float64("confidence", res.ConfidencePercent),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, kind string, err error) (model.ClassificationResult, error) {
	metrics.RecordClassification(kind)
	metrics.RecordErrorByComponent("pipeline", kind)
	p.log.Warn(ctx, "classification failed", logger.String("kind", kind), logger.Error(err))
	return resolve.Failed(), err
}

func (p *Pipeline) observe(stage string, since time.Time) {
	metrics.RecordStageLatency(stage, float64(time.Since(since).Microseconds())/1000)
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, inference.ErrModelUnavailable):
		return "not_ready"
	case errors.Is(err, inference.ErrShapeMismatch):
		return "shape_mismatch"
	default:
		return "inference_error"
	}
}
