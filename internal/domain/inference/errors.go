package inference

import (
	"errors"

	"github.com/okian/skincheck/internal/domain/asset"
)

var (
	// ErrModelUnavailable is returned when the engine is not loaded or the
	// load failed. It is the same sentinel the asset fetch uses.
	ErrModelUnavailable = asset.ErrModelUnavailable
	// ErrShapeMismatch reports an input tensor the network cannot accept.
	ErrShapeMismatch = errors.New("input shape mismatch")
	// ErrInference reports a failed forward pass or a non-finite or
	// wrongly sized output.
	ErrInference = errors.New("inference error")
)
