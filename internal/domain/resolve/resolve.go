// Package resolve turns output vectors into user-facing classification
// results and defines the messages shown for every other state.
package resolve

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

// User-facing messages.
const (
	MessageLoading    = "System loading"
	MessageReady      = "System ready"
	MessageAnalyzing  = "Analyzing"
	MessageError      = "Could not recognize"
	MessageLoadFailed = "Startup failed"

	// FallbackLabel is shown when the winning index has no label.
	FallbackLabel = "Analysis complete"
)

// Resolver maps output vectors to results.
type Resolver struct {
	log logger.Logger
}

// New creates a Resolver. A nil logger selects the global one.
func New(l logger.Logger) *Resolver {
	if l == nil {
		l = logger.Named("resolver")
	}
	return &Resolver{log: l}
}

// Resolve picks the highest score (first index on ties), formats its
// confidence to one decimal and looks up its label. An index without a
// label yields FallbackLabel and a logged ConsistencyAnomaly, as does a
// score outside [0, 1].
func (r *Resolver) Resolve(ctx context.Context, vec model.OutputVector, labels []string) model.ClassificationResult {
	idx := Argmax(vec)
	if idx < 0 {
		r.log.Warn(ctx, "empty output vector")
		return Failed()
	}

	if j := vec.OutOfRange(); j >= 0 {
		metrics.RecordConsistencyAnomaly()
		r.log.Warn(ctx, "output score outside [0,1]",
			logger.Error(ErrConsistencyAnomaly),
			logger.Int("index", j),
			logger.Float64("score", float64(vec[j])))
	}

	confidence := RoundConfidence(vec[idx])
	label := FallbackLabel
	if idx < len(labels) {
		label = labels[idx]
	} else {
		metrics.RecordConsistencyAnomaly()
		r.log.Warn(ctx, "no label for output index",
			logger.Error(ErrConsistencyAnomaly),
			logger.Int("index", idx),
			logger.Int("labels", len(labels)),
			logger.Int("outputs", len(vec)))
	}
	metrics.RecordConfidence(confidence)

	return model.ClassificationResult{
		State:             model.StateSuccess,
		Label:             label,
		Index:             idx,
		ConfidencePercent: confidence,
		Message:           Message(label, confidence),
	}
}

// Argmax returns the index of the largest value, the lowest such index on
// ties, or -1 for an empty vector.
func Argmax(vec model.OutputVector) int {
	if len(vec) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(vec); i++ {
		if vec[i] > vec[best] {
			best = i
		}
	}
	return best
}

// RoundConfidence converts a score to a percentage rounded half away from
// zero to one decimal place.
func RoundConfidence(score float32) float64 {
	pct := float64(score) * 100
	return math.Round(pct*10) / 10
}

// Message composes the success message.
func Message(label string, confidence float64) string {
	return fmt.Sprintf("%s\nConfidence: %.1f%%", label, confidence)
}

// Loading is the result shown until the model is ready.
func Loading() model.ClassificationResult {
	return model.ClassificationResult{State: model.StateLoading, Index: -1, Message: MessageLoading}
}

// Ready is the idle result once the model has loaded.
func Ready() model.ClassificationResult {
	return model.ClassificationResult{State: model.StateReady, Index: -1, Message: MessageReady}
}

// Analyzing is the in-progress result.
func Analyzing() model.ClassificationResult {
	return model.ClassificationResult{State: model.StateAnalyzing, Index: -1, Message: MessageAnalyzing}
}

// Failed is the generic failure result for a request.
func Failed() model.ClassificationResult {
	return model.ClassificationResult{State: model.StateError, Index: -1, Message: MessageError}
}

// LoadFailed is shown when the model could not be loaded at all.
func LoadFailed() model.ClassificationResult {
	return model.ClassificationResult{State: model.StateLoadFailed, Index: -1, Message: MessageLoadFailed}
}
