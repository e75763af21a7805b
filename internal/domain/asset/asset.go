// Package asset defines the immutable model bundle and how it is fetched from
// a store keyed by URL.
package asset

import (
	"fmt"
	"sort"
)

// ModelAsset is the immutable bundle the inference engine is built from.
// Construct it with New; the zero value is not ready.
type ModelAsset struct {
	format   string
	topology []byte
	weights  map[string][]byte
	labels   []string
}

// New builds a ready asset, rejecting any bundle that would not be.
func New(format string, topology []byte, weights map[string][]byte, labels []string) (*ModelAsset, error) {
	a := &ModelAsset{
		format:   format,
		topology: append([]byte(nil), topology...),
		weights:  make(map[string][]byte, len(weights)),
		labels:   append([]string(nil), labels...),
	}
	for k, v := range weights {
		a.weights[k] = v
	}
	if !a.Ready() {
		return nil, fmt.Errorf("%w: incomplete bundle (topology=%d bytes, weights=%d, labels=%d)",
			ErrModelUnavailable, len(topology), len(weights), len(labels))
	}
	return a, nil
}

// Ready is true iff topology, weights and a non-empty label list are present.
func (a *ModelAsset) Ready() bool {
	return a != nil && len(a.topology) > 0 && len(a.weights) > 0 && len(a.labels) > 0
}

// Format returns the layout name (tfjs, onnx, tflite).
func (a *ModelAsset) Format() string { return a.format }

// Topology returns the graph description. Callers must not modify it.
func (a *ModelAsset) Topology() []byte { return a.topology }

// Weight returns one weight blob by its manifest path.
func (a *ModelAsset) Weight(path string) ([]byte, bool) {
	b, ok := a.weights[path]
	return b, ok
}

// WeightPaths lists the weight blob paths in sorted order.
func (a *ModelAsset) WeightPaths() []string {
	out := make([]string, 0, len(a.weights))
	for k := range a.weights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Labels returns a copy of the ordered label list.
func (a *ModelAsset) Labels() []string {
	return append([]string(nil), a.labels...)
}

// NumLabels returns the label count without copying.
func (a *ModelAsset) NumLabels() int { return len(a.labels) }
