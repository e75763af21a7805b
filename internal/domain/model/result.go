package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite reports NaN or Inf values in an output vector.
var ErrNonFinite = errors.New("non-finite output value")

// OutputVector holds one score per label, in label order.
type OutputVector []float32

// Len returns the number of scores.
func (v OutputVector) Len() int { return len(v) }

// Validate rejects NaN and Inf entries.
func (v OutputVector) Validate() error {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w at index %d: %v", ErrNonFinite, i, x)
		}
	}
	return nil
}

// OutOfRange returns the first index whose score lies outside [0, 1], or -1.
func (v OutputVector) OutOfRange() int {
	for i, x := range v {
		if x < 0 || x > 1 {
			return i
		}
	}
	return -1
}

// State is the user-facing stage of a classification request.
type State string

// Display states.
const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateAnalyzing  State = "analyzing"
	StateSuccess    State = "success"
	StateError      State = "error"
	StateLoadFailed State = "load_failed"
)

// ClassificationResult is the final, immutable output of one request.
// Label and ConfidencePercent are only meaningful in StateSuccess.
type ClassificationResult struct {
	State             State   `json:"state"`
	Label             string  `json:"label,omitempty"`
	Index             int     `json:"index"`
	ConfidencePercent float64 `json:"confidence_percent"`
	Message           string  `json:"message"`
}

// Succeeded reports whether the result carries a label.
func (r ClassificationResult) Succeeded() bool { return r.State == StateSuccess }
