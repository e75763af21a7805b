package tfjs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/skincheck/internal/domain/tensor"
)

// op is one compiled layer. infer validates input shapes, binds weights
// and returns the output shape; run fills out from in.
type op interface {
	infer(in []tensor.Shape, ws *weightStore) (tensor.Shape, error)
	run(in []*tensor.Tensor, out *tensor.Tensor)
}

// pair decodes Keras' int-or-[int,int] hyperparameters.
type pair [2]int

func (p *pair) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*p = pair{n, n}
		return nil
	}
	var xs []int
	if err := json.Unmarshal(b, &xs); err != nil {
		return err
	}
	switch len(xs) {
	case 1:
		*p = pair{xs[0], xs[0]}
	case 2:
		*p = pair{xs[0], xs[1]}
	default:
		return fmt.Errorf("expected 1 or 2 values, got %d", len(xs))
	}
	return nil
}

type layerConfig struct {
	Name            string          `json:"name"`
	Filters         int             `json:"filters"`
	Units           int             `json:"units"`
	KernelSize      pair            `json:"kernel_size"`
	Strides         *pair           `json:"strides"`
	PoolSize        pair            `json:"pool_size"`
	DilationRate    *pair           `json:"dilation_rate"`
	Padding         json.RawMessage `json:"padding"`
	UseBias         *bool           `json:"use_bias"`
	Activation      json.RawMessage `json:"activation"`
	DepthMultiplier int             `json:"depth_multiplier"`
	Epsilon         *float32        `json:"epsilon"`
	Center          *bool           `json:"center"`
	Scale           *bool           `json:"scale"`
	Axis            json.RawMessage `json:"axis"`
	MaxValue        *float32        `json:"max_value"`
	NegativeSlope   float32         `json:"negative_slope"`
	Threshold       float32         `json:"threshold"`
	TargetShape     []int           `json:"target_shape"`
	BatchInputShape []*int          `json:"batch_input_shape"`
	BatchShape      []*int          `json:"batch_shape"`
	DataFormat      string          `json:"data_format"`
	KeepDims        bool            `json:"keepdims"`
}

func (c layerConfig) stride() pair {
	if c.Strides == nil {
		return pair{1, 1}
	}
	return *c.Strides
}

func (c layerConfig) dilation() pair {
	if c.DilationRate == nil {
		return pair{1, 1}
	}
	return *c.DilationRate
}

func (c layerConfig) bias() bool { return c.UseBias == nil || *c.UseBias }

func (c layerConfig) same() (bool, error) {
	var s string
	if len(c.Padding) > 0 {
		if err := json.Unmarshal(c.Padding, &s); err != nil {
			return false, fmt.Errorf("padding: %w", err)
		}
	}
	switch strings.ToLower(s) {
	case "", "valid":
		return false, nil
	case "same":
		return true, nil
	}
	return false, fmt.Errorf("unsupported padding %q", s)
}

func (c layerConfig) activation() (activation, error) {
	var name string
	if len(c.Activation) > 0 && !bytes.Equal(c.Activation, []byte("null")) {
		if err := json.Unmarshal(c.Activation, &name); err != nil {
			return nil, fmt.Errorf("activation: %w", err)
		}
	}
	act, ok := activationFor(name)
	if !ok {
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
	return act, nil
}

// inputShape returns the declared batch shape with the batch fixed to 1.
func (c layerConfig) inputShape() (tensor.Shape, bool, error) {
	dims := c.BatchInputShape
	if dims == nil {
		dims = c.BatchShape
	}
	if dims == nil {
		return nil, false, nil
	}
	shape := make(tensor.Shape, len(dims))
	for i, d := range dims {
		switch {
		case d != nil:
			shape[i] = *d
		case i == 0:
			shape[i] = 1
		default:
			return nil, true, fmt.Errorf("dynamic dimension %d in input shape", i)
		}
	}
	return shape, true, nil
}

// newOp builds the op for one Keras layer class.
func newOp(class string, c layerConfig) (op, error) {
	if c.DataFormat != "" && c.DataFormat != "channels_last" {
		return nil, fmt.Errorf("data_format %q not supported", c.DataFormat)
	}
	switch class {
	case "Conv2D":
		same, err := c.same()
		if err != nil {
			return nil, err
		}
		act, err := c.activation()
		if err != nil {
			return nil, err
		}
		return &convOp{name: c.Name, filters: c.Filters, k: c.KernelSize, s: c.stride(), d: c.dilation(), same: same, useBias: c.bias(), act: act}, nil
	case "DepthwiseConv2D":
		same, err := c.same()
		if err != nil {
			return nil, err
		}
		act, err := c.activation()
		if err != nil {
			return nil, err
		}
		mult := c.DepthMultiplier
		if mult == 0 {
			mult = 1
		}
		return &depthwiseOp{name: c.Name, mult: mult, k: c.KernelSize, s: c.stride(), d: c.dilation(), same: same, useBias: c.bias(), act: act}, nil
	case "BatchNormalization":
		eps := float32(1e-3)
		if c.Epsilon != nil {
			eps = *c.Epsilon
		}
		return &batchNormOp{name: c.Name, eps: eps, center: c.Center == nil || *c.Center, scale: c.Scale == nil || *c.Scale, axis: c.Axis}, nil
	case "ReLU":
		maxValue := float32(-1)
		if c.MaxValue != nil {
			maxValue = *c.MaxValue
		}
		return &reluOp{maxValue: maxValue, slope: c.NegativeSlope, threshold: c.Threshold}, nil
	case "Activation":
		act, err := c.activation()
		if err != nil {
			return nil, err
		}
		return &activationOp{act: act}, nil
	case "Softmax":
		return &activationOp{act: softmax}, nil
	case "ZeroPadding2D":
		return newZeroPad(c.Padding)
	case "Add":
		return &addOp{}, nil
	case "GlobalAveragePooling2D":
		return &gapOp{keepDims: c.KeepDims}, nil
	case "MaxPooling2D", "AveragePooling2D":
		same, err := c.same()
		if err != nil {
			return nil, err
		}
		s := c.PoolSize
		if c.Strides != nil {
			s = *c.Strides
		}
		return &poolOp{k: c.PoolSize, s: s, same: same, avg: class == "AveragePooling2D"}, nil
	case "Dense":
		act, err := c.activation()
		if err != nil {
			return nil, err
		}
		return &denseOp{name: c.Name, units: c.Units, useBias: c.bias(), act: act}, nil
	case "Dropout", "SpatialDropout2D", "GaussianNoise", "GaussianDropout":
		return &reshapeOp{}, nil
	case "Flatten":
		return &reshapeOp{flatten: true}, nil
	case "Reshape":
		return &reshapeOp{target: c.TargetShape}, nil
	}
	return nil, fmt.Errorf("%w: layer class %q", ErrTopology, class)
}

func spatial(in []tensor.Shape) (h, w, c int, err error) {
	if len(in) != 1 || len(in[0]) != 4 || in[0][0] != 1 {
		return 0, 0, 0, fmt.Errorf("expected one [1,H,W,C] input, got %v", in)
	}
	return in[0][1], in[0][2], in[0][3], nil
}

func checkWindow(w window) error {
	if w.outH <= 0 || w.outW <= 0 {
		return fmt.Errorf("window leaves empty output %dx%d", w.outH, w.outW)
	}
	return nil
}

type inputOp struct{ shape tensor.Shape }

func (o *inputOp) infer([]tensor.Shape, *weightStore) (tensor.Shape, error) { return o.shape, nil }
func (o *inputOp) run([]*tensor.Tensor, *tensor.Tensor)                      {}

type convOp struct {
	name     string
	filters  int
	k, s, d  pair
	same     bool
	useBias  bool
	act      activation
	kernel   []float32
	bias     []float32
	inH, inW int
	cin      int
	win      window
}

func (o *convOp) infer(in []tensor.Shape, ws *weightStore) (tensor.Shape, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, err
	}
	if o.kernel, err = ws.get(o.name, "kernel", tensor.Shape{o.k[0], o.k[1], c, o.filters}); err != nil {
		return nil, err
	}
	if o.useBias {
		if o.bias, err = ws.get(o.name, "bias", tensor.Shape{o.filters}); err != nil {
			return nil, err
		}
	}
	o.inH, o.inW, o.cin = h, w, c
	o.win = planWindow(h, w, o.k[0], o.k[1], o.s[0], o.s[1], o.d[0], o.d[1], o.same)
	if err := checkWindow(o.win); err != nil {
		return nil, err
	}
	return tensor.Shape{1, o.win.outH, o.win.outW, o.filters}, nil
}

func (o *convOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	d := out.Data()
	conv2d(in[0].Data(), o.inH, o.inW, o.cin, o.kernel, o.filters, o.win, d)
	if o.bias != nil {
		addBias(d, o.bias)
	}
	if o.act != nil {
		o.act(d, o.filters)
	}
}

type depthwiseOp struct {
	name     string
	mult     int
	k, s, d  pair
	same     bool
	useBias  bool
	act      activation
	kernel   []float32
	bias     []float32
	inH, inW int
	cin      int
	win      window
}

func (o *depthwiseOp) infer(in []tensor.Shape, ws *weightStore) (tensor.Shape, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, err
	}
	if o.kernel, err = ws.get(o.name, "depthwise_kernel", tensor.Shape{o.k[0], o.k[1], c, o.mult}); err != nil {
		return nil, err
	}
	if o.useBias {
		if o.bias, err = ws.get(o.name, "bias", tensor.Shape{c * o.mult}); err != nil {
			return nil, err
		}
	}
	o.inH, o.inW, o.cin = h, w, c
	o.win = planWindow(h, w, o.k[0], o.k[1], o.s[0], o.s[1], o.d[0], o.d[1], o.same)
	if err := checkWindow(o.win); err != nil {
		return nil, err
	}
	return tensor.Shape{1, o.win.outH, o.win.outW, c * o.mult}, nil
}

func (o *depthwiseOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	d := out.Data()
	depthwiseConv2d(in[0].Data(), o.inH, o.inW, o.cin, o.kernel, o.mult, o.win, d)
	if o.bias != nil {
		addBias(d, o.bias)
	}
	if o.act != nil {
		o.act(d, o.cin*o.mult)
	}
}

type batchNormOp struct {
	name          string
	eps           float32
	center, scale bool
	axis          json.RawMessage
	mul, shift    []float32
}

func (o *batchNormOp) infer(in []tensor.Shape, ws *weightStore) (tensor.Shape, error) {
	if len(in) != 1 || len(in[0]) < 2 {
		return nil, fmt.Errorf("expected one input of rank >= 2")
	}
	rank := len(in[0])
	if len(o.axis) > 0 {
		var axis int
		if err := json.Unmarshal(o.axis, &axis); err != nil {
			var axes []int
			if err := json.Unmarshal(o.axis, &axes); err != nil || len(axes) != 1 {
				return nil, fmt.Errorf("unsupported axis %s", o.axis)
			}
			axis = axes[0]
		}
		if axis != -1 && axis != rank-1 {
			return nil, fmt.Errorf("only last-axis normalization is supported, got axis %d", axis)
		}
	}
	c := in[0][rank-1]
	shape := tensor.Shape{c}

	mean, err := ws.get(o.name, "moving_mean", shape)
	if err != nil {
		return nil, err
	}
	variance, err := ws.get(o.name, "moving_variance", shape)
	if err != nil {
		return nil, err
	}
	gamma, beta := make([]float32, c), make([]float32, c)
	for i := range gamma {
		gamma[i] = 1
	}
	if o.scale {
		if gamma, err = ws.get(o.name, "gamma", shape); err != nil {
			return nil, err
		}
	}
	if o.center {
		if beta, err = ws.get(o.name, "beta", shape); err != nil {
			return nil, err
		}
	}

	o.mul, o.shift = make([]float32, c), make([]float32, c)
	for i := 0; i < c; i++ {
		inv := gamma[i] / sqrt32(variance[i]+o.eps)
		o.mul[i] = inv
		o.shift[i] = beta[i] - mean[i]*inv
	}
	return in[0], nil
}

func (o *batchNormOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	d := out.Data()
	copy(d, in[0].Data())
	affine(d, o.mul, o.shift)
}

type reluOp struct {
	maxValue, slope, threshold float32
}

func (o *reluOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("expected one input")
	}
	return in[0], nil
}

func (o *reluOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	d := out.Data()
	copy(d, in[0].Data())
	relu(d, o.maxValue, o.slope, o.threshold)
}

type activationOp struct {
	act  activation
	last int
}

func (o *activationOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	if len(in) != 1 || len(in[0]) == 0 {
		return nil, fmt.Errorf("expected one input")
	}
	o.last = in[0][len(in[0])-1]
	return in[0], nil
}

func (o *activationOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	d := out.Data()
	copy(d, in[0].Data())
	if o.act != nil {
		o.act(d, o.last)
	}
}

type zeroPadOp struct {
	top, bottom, left, right int
	inH, inW, c, outH, outW  int
}

func newZeroPad(raw json.RawMessage) (op, error) {
	o := &zeroPadOp{top: 1, bottom: 1, left: 1, right: 1}
	if len(raw) == 0 {
		return o, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		o.top, o.bottom, o.left, o.right = n, n, n, n
		return o, nil
	}
	var nested [][]int
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) == 2 && len(nested[0]) == 2 && len(nested[1]) == 2 {
		o.top, o.bottom, o.left, o.right = nested[0][0], nested[0][1], nested[1][0], nested[1][1]
		return o, nil
	}
	var flat []int
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) == 2 {
		o.top, o.bottom, o.left, o.right = flat[0], flat[0], flat[1], flat[1]
		return o, nil
	}
	return nil, fmt.Errorf("unsupported zero padding %s", raw)
}

func (o *zeroPadOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, err
	}
	o.inH, o.inW, o.c = h, w, c
	o.outH, o.outW = h+o.top+o.bottom, w+o.left+o.right
	return tensor.Shape{1, o.outH, o.outW, c}, nil
}

func (o *zeroPadOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	zeroPad(in[0].Data(), o.inH, o.inW, o.c, o.top, o.left, o.outH, o.outW, out.Data())
}

type addOp struct{}

func (addOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	if len(in) < 2 {
		return nil, fmt.Errorf("add needs at least two inputs, got %d", len(in))
	}
	for _, s := range in[1:] {
		if !s.Equal(in[0]) {
			return nil, fmt.Errorf("add inputs differ: %s vs %s", in[0], s)
		}
	}
	return in[0], nil
}

func (addOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	d := out.Data()
	copy(d, in[0].Data())
	for _, t := range in[1:] {
		for i, v := range t.Data() {
			d[i] += v
		}
	}
}

type gapOp struct {
	keepDims bool
	hw, c    int
}

func (o *gapOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, err
	}
	o.hw, o.c = h*w, c
	if o.keepDims {
		return tensor.Shape{1, 1, 1, c}, nil
	}
	return tensor.Shape{1, c}, nil
}

func (o *gapOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	globalAvgPool(in[0].Data(), o.hw, o.c, out.Data())
}

type poolOp struct {
	k, s     pair
	same     bool
	avg      bool
	inH, inW int
	c        int
	win      window
}

func (o *poolOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	h, w, c, err := spatial(in)
	if err != nil {
		return nil, err
	}
	o.inH, o.inW, o.c = h, w, c
	o.win = planWindow(h, w, o.k[0], o.k[1], o.s[0], o.s[1], 1, 1, o.same)
	if err := checkWindow(o.win); err != nil {
		return nil, err
	}
	return tensor.Shape{1, o.win.outH, o.win.outW, c}, nil
}

func (o *poolOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	pool2d(in[0].Data(), o.inH, o.inW, o.c, o.win, out.Data(), o.avg)
}

type denseOp struct {
	name    string
	units   int
	useBias bool
	act     activation
	kernel  []float32
	bias    []float32
	in      int
}

func (o *denseOp) infer(in []tensor.Shape, ws *weightStore) (tensor.Shape, error) {
	if len(in) != 1 || len(in[0]) < 2 {
		return nil, fmt.Errorf("expected one input of rank >= 2")
	}
	rank := len(in[0])
	o.in = in[0][rank-1]
	var err error
	if o.kernel, err = ws.get(o.name, "kernel", tensor.Shape{o.in, o.units}); err != nil {
		return nil, err
	}
	if o.useBias {
		if o.bias, err = ws.get(o.name, "bias", tensor.Shape{o.units}); err != nil {
			return nil, err
		}
	}
	out := in[0].Clone()
	out[rank-1] = o.units
	return out, nil
}

func (o *denseOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	src, dst := in[0].Data(), out.Data()
	rows := len(src) / o.in
	for r := 0; r < rows; r++ {
		dense(src[r*o.in:(r+1)*o.in], o.kernel, o.units, dst[r*o.units:(r+1)*o.units])
	}
	if o.bias != nil {
		addBias(dst, o.bias)
	}
	if o.act != nil {
		o.act(dst, o.units)
	}
}

// reshapeOp covers identity layers, Flatten and Reshape: the data is
// copied unchanged under a new shape.
type reshapeOp struct {
	flatten bool
	target  []int
}

func (o *reshapeOp) infer(in []tensor.Shape, _ *weightStore) (tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("expected one input")
	}
	switch {
	case o.flatten:
		return tensor.Shape{1, in[0].Size()}, nil
	case o.target != nil:
		out := append(tensor.Shape{1}, o.target...)
		unknown, known := -1, 1
		for i, d := range out {
			if d == -1 {
				if unknown >= 0 {
					return nil, fmt.Errorf("reshape has more than one -1")
				}
				unknown = i
				continue
			}
			known *= d
		}
		if unknown >= 0 {
			out[unknown] = in[0].Size() / known
		}
		if out.Size() != in[0].Size() {
			return nil, fmt.Errorf("cannot reshape %s to %s", in[0], out)
		}
		return out, nil
	}
	return in[0], nil
}

func (o *reshapeOp) run(in []*tensor.Tensor, out *tensor.Tensor) {
	copy(out.Data(), in[0].Data())
}
