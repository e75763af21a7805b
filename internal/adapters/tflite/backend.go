//go:build tflite

// Package tflite serves TensorFlow Lite flatbuffer models through the
// native interpreter.
package tflite

import (
	"context"
	"fmt"
	"sync"

	"github.com/mattn/go-tflite"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
)

// Backend compiles tflite assets into interpreters.
type Backend struct {
	threads int
	log     logger.Logger
}

// New creates a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Named("tflite")
	}
	return b
}

// Name implements inference.Backend.
func (*Backend) Name() string { return "tflite" }

// Compile loads the flatbuffer and allocates the interpreter's tensors.
func (b *Backend) Compile(ctx context.Context, a *asset.ModelAsset) (inference.Network, error) {
	data, ok := a.Weight(asset.TFLite.TopologyFile)
	if !ok {
		data = a.Topology()
	}
	m := tflite.NewModel(data)
	if m == nil {
		return nil, fmt.Errorf("%w: cannot load model", ErrInterpreter)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if b.threads > 0 {
		options.SetNumThread(b.threads)
	}
	interp := tflite.NewInterpreter(m, options)
	if interp == nil {
		m.Delete()
		return nil, fmt.Errorf("%w: cannot create interpreter", ErrInterpreter)
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		m.Delete()
		return nil, fmt.Errorf("%w: allocate tensors: status %v", ErrInterpreter, status)
	}
	if interp.GetInputTensorCount() != 1 || interp.GetOutputTensorCount() != 1 {
		interp.Delete()
		m.Delete()
		return nil, fmt.Errorf("%w: want one input and one output", ErrInterpreter)
	}

	in, out := interp.GetInputTensor(0), interp.GetOutputTensor(0)
	n := &network{
		model:    m,
		interp:   interp,
		inShape:  shapeOf(in),
		outShape: shapeOf(out),
	}
	b.log.Info(ctx, "tflite interpreter ready",
		logger.String("input", in.Name()),
		logger.String("input_shape", n.inShape.String()),
		logger.Int("outputs", n.outShape.Size()))
	return n, nil
}

func shapeOf(t *tflite.Tensor) tensor.Shape {
	s := make(tensor.Shape, t.NumDims())
	for i := range s {
		s[i] = t.Dim(i)
	}
	return s
}

type network struct {
	mu       sync.Mutex
	model    *tflite.Model
	interp   *tflite.Interpreter
	inShape  tensor.Shape
	outShape tensor.Shape
	closed   bool
}

func (n *network) InputShape() tensor.Shape { return n.inShape }

func (n *network) OutputLen() int { return n.outShape.Size() }

// Forward fills the input tensor, invokes the interpreter and copies the
// output into the scope. The interpreter is not safe for concurrent use.
func (n *network) Forward(_ context.Context, scope *tensor.Scope, input *tensor.Tensor) (*tensor.Tensor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, fmt.Errorf("%w: interpreter closed", ErrInterpreter)
	}

	in := n.interp.GetInputTensor(0)
	switch in.Type() {
	case tflite.Float32:
		if err := in.SetFloat32s(input.Data()); err != nil {
			return nil, fmt.Errorf("set input: %w", err)
		}
	case tflite.UInt8:
		q := in.QuantizationParams()
		buf := make([]uint8, len(input.Data()))
		quantize(input.Data(), q.Scale, q.ZeroPoint, buf)
		if err := in.SetUint8s(buf); err != nil {
			return nil, fmt.Errorf("set input: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported input type %v", in.Type())
	}

	if status := n.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("%w: invoke status %v", ErrInterpreter, status)
	}

	out := n.interp.GetOutputTensor(0)
	res := scope.Zeros(n.outShape)
	switch out.Type() {
	case tflite.Float32:
		copy(res.Data(), out.Float32s())
	case tflite.UInt8:
		q := out.QuantizationParams()
		dequantize(out.UInt8s(), q.Scale, q.ZeroPoint, res.Data())
	default:
		res.Release()
		return nil, fmt.Errorf("unsupported output type %v", out.Type())
	}
	return res, nil
}

func (n *network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.interp.Delete()
	n.model.Delete()
	return nil
}
