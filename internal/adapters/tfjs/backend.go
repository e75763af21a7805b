// Package tfjs executes TensorFlow.js layers models (model.json plus
// binary weight shards) in pure Go. It supports the layer set used by
// MobileNet-based image classifiers, including Teachable Machine exports.
package tfjs

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
)

// Backend compiles tfjs assets.
type Backend struct {
	log logger.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the backend logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Named("tfjs")
	}
	return b
}

// Name implements inference.Backend.
func (*Backend) Name() string { return "tfjs" }

// Compile parses the topology, decodes every weight and checks that each
// layer finds weights of the shape it needs.
func (b *Backend) Compile(ctx context.Context, a *asset.ModelAsset) (inference.Network, error) {
	doc, err := asset.ParseTFJSModel(a.Topology())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopology, err)
	}
	weights, err := decodeWeights(a, doc.WeightsManifest)
	if err != nil {
		return nil, err
	}
	ws := newWeightStore(weights)
	g, err := buildGraph(doc.ModelTopology, ws)
	if err != nil {
		return nil, err
	}

	if extra := ws.unused(); len(extra) > 0 {
		sort.Strings(extra)
		b.log.Warn(ctx, "manifest has weights no layer uses",
			logger.Int("count", len(extra)),
			logger.String("first", extra[0]))
	}

	net := newNetwork(g)
	b.log.Info(ctx, "tfjs model compiled",
		logger.Int("layers", len(g.nodes)),
		logger.String("input", net.InputShape().String()),
		logger.Int("outputs", net.OutputLen()))
	return net, nil
}

type network struct {
	g         *graph
	consumers []int
}

func newNetwork(g *graph) *network {
	consumers := make([]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, in := range n.inputs {
			consumers[in]++
		}
	}
	return &network{g: g, consumers: consumers}
}

func (n *network) InputShape() tensor.Shape { return n.g.nodes[n.g.input].shape }

func (n *network) OutputLen() int { return n.g.nodes[n.g.output].shape.Size() }

func (n *network) Close() error { return nil }

// Forward evaluates the graph in order. Activations are released as soon
// as their last consumer has run.
func (n *network) Forward(_ context.Context, scope *tensor.Scope, input *tensor.Tensor) (*tensor.Tensor, error) {
	if !input.Shape().Equal(n.InputShape()) {
		return nil, fmt.Errorf("input %s, want %s", input.Shape(), n.InputShape())
	}
	vals := make([]*tensor.Tensor, len(n.g.nodes))
	remaining := append([]int(nil), n.consumers...)
	vals[n.g.input] = input

	for i, nd := range n.g.nodes {
		if i == n.g.input {
			continue
		}
		ins := make([]*tensor.Tensor, len(nd.inputs))
		for j, src := range nd.inputs {
			ins[j] = vals[src]
		}
		out := scope.Zeros(nd.shape)
		nd.op.run(ins, out)
		vals[i] = out

		for _, src := range nd.inputs {
			remaining[src]--
			if remaining[src] == 0 && src != n.g.input && src != n.g.output {
				vals[src].Release()
			}
		}
	}
	return vals[n.g.output], nil
}
