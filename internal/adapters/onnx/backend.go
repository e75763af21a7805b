// Package onnx serves models exported to ONNX through onnxruntime.
package onnx

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/tensor"
	"github.com/okian/skincheck/pkg/logger"
)

// envMu guards the process-wide onnxruntime environment.
var envMu sync.Mutex

// Backend compiles onnx assets into runtime sessions.
type Backend struct {
	libraryPath string
	threads     int
	log         logger.Logger
}

// New creates a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Named("onnx")
	}
	return b
}

// Name implements inference.Backend.
func (*Backend) Name() string { return "onnx" }

// Compile opens a session over the graph bytes held by the asset.
func (b *Backend) Compile(ctx context.Context, a *asset.ModelAsset) (inference.Network, error) {
	graph, ok := a.Weight(asset.ONNX.TopologyFile)
	if !ok {
		graph = a.Topology()
	}
	if len(graph) == 0 {
		return nil, fmt.Errorf("%w: empty graph", ErrGraph)
	}
	if err := b.initEnvironment(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(graph)
	if err != nil {
		return nil, fmt.Errorf("%w: io info: %w", ErrGraph, err)
	}
	in, out, err := selectIO(inputs, outputs)
	if err != nil {
		return nil, err
	}
	inShape, err := shapeOf(in.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: input %s: %w", ErrGraph, in.Name, err)
	}
	outShape, err := shapeOf(out.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("%w: output %s: %w", ErrGraph, out.Name, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %w", ErrRuntime, err)
	}
	defer func() { _ = opts.Destroy() }()
	if b.threads > 0 {
		if err := opts.SetIntraOpNumThreads(b.threads); err != nil {
			b.log.Warn(ctx, "could not set intra-op threads", logger.Int("threads", b.threads), logger.Error(err))
		}
	}

	sess, err := ort.NewDynamicAdvancedSessionWithONNXData(graph, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: session: %w", ErrGraph, err)
	}

	b.log.Info(ctx, "onnx session created",
		logger.String("input", in.Name),
		logger.String("input_shape", inShape.String()),
		logger.String("output", out.Name),
		logger.Int("outputs", outShape.Size()))
	return &network{session: sess, inShape: inShape, outShape: outShape}, nil
}

func (b *Backend) initEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	path, err := locateLibrary(b.libraryPath)
	if err != nil {
		return err
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return nil
}

// locateLibrary returns the configured path if it exists, otherwise the
// first system location holding the shared library.
func locateLibrary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %w", ErrRuntime, err)
		}
		return configured, nil
	}
	for _, p := range libraryCandidates(runtime.GOOS) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: shared library not found for %s", ErrRuntime, runtime.GOOS)
}

func libraryCandidates(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"/opt/homebrew/lib/libonnxruntime.dylib", "/usr/local/lib/libonnxruntime.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	}
	return []string{
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	}
}

func selectIO(inputs, outputs []ort.InputOutputInfo) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	if len(inputs) != 1 || len(outputs) != 1 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("%w: want one input and one output, have %d and %d", ErrGraph, len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("%w: only float32 input and output are supported", ErrGraph)
	}
	return in, out, nil
}

// shapeOf pins a dynamic leading batch dimension to 1. Any other dynamic
// dimension is rejected.
func shapeOf(dims ort.Shape) (tensor.Shape, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("scalar tensors are not supported")
	}
	out := make(tensor.Shape, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			out[i] = int(d)
		case i == 0:
			out[i] = 1
		default:
			return nil, fmt.Errorf("dynamic dimension %d", i)
		}
	}
	return out, nil
}

func toORT(s tensor.Shape) ort.Shape {
	dims := make([]int64, len(s))
	for i, d := range s {
		dims[i] = int64(d)
	}
	return ort.NewShape(dims...)
}

type network struct {
	session  *ort.DynamicAdvancedSession
	inShape  tensor.Shape
	outShape tensor.Shape

	mu     sync.Mutex
	closed bool
}

func (n *network) InputShape() tensor.Shape { return n.inShape }

func (n *network) OutputLen() int { return n.outShape.Size() }

// Forward runs the session. Native tensors are destroyed before return; the
// result is copied into a scope tensor.
func (n *network) Forward(_ context.Context, scope *tensor.Scope, input *tensor.Tensor) (*tensor.Tensor, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, fmt.Errorf("%w: session closed", ErrRuntime)
	}

	in, err := ort.NewTensor(toORT(input.Shape()), input.Data())
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = in.Destroy() }()

	outputs := []ort.ArbitraryTensor{nil}
	if err := n.session.Run([]ort.ArbitraryTensor{in}, outputs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	data, err := outputData(outputs[0], n.outShape.Size())
	if err != nil {
		return nil, err
	}
	res := scope.Zeros(n.outShape)
	copy(res.Data(), data)
	return res, nil
}

// outputData unwraps a runtime-allocated float32 output of exactly want values.
func outputData(v ort.ArbitraryTensor, want int) ([]float32, error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: type %T", ErrOutput, v)
	}
	data := t.GetData()
	if len(data) != want {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrOutput, len(data), want)
	}
	return data, nil
}

func (n *network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.session.Destroy()
}
