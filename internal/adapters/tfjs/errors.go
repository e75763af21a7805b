package tfjs

import "errors"

var (
	// ErrTopology reports a model.json graph this backend cannot build.
	ErrTopology = errors.New("unsupported topology")
	// ErrWeights reports weights that are missing, truncated or do not fit
	// the layer that uses them.
	ErrWeights = errors.New("weight mismatch")
)
