package inference

import (
	"context"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/tensor"
)

// Network is a compiled model. Implementations must be safe for concurrent
// Forward calls or serialize them internally.
type Network interface {
	// InputShape is the exact shape Forward accepts.
	InputShape() tensor.Shape
	// OutputLen is the declared number of output scores.
	OutputLen() int
	// Forward runs one deterministic pass. Every tensor it creates,
	// including the returned one, must come from scope.
	Forward(ctx context.Context, scope *tensor.Scope, input *tensor.Tensor) (*tensor.Tensor, error)
	// Close frees native resources.
	Close() error
}

// Backend compiles model assets of one format.
type Backend interface {
	Name() string
	Compile(ctx context.Context, a *asset.ModelAsset) (Network, error)
}
