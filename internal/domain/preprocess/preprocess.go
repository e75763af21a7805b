// Package preprocess converts decoded images into the exact input tensor
// the classifier was trained on. None of these steps are configurable.
package preprocess

import (
	"fmt"
	"math"

	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/tensor"
)

// Input geometry.
const (
	Size     = 224
	Channels = model.RGBChannels
)

// InputShape is the NHWC shape every prepared tensor has.
var InputShape = tensor.Shape{1, Size, Size, Channels}

// Normalize maps a [0,255] sample into [-1,1].
func Normalize(v float32) float32 {
	return v/127.5 - 1
}

// Prepare resizes raw to Size x Size, adds the batch dimension and
// normalizes. Every intermediate tensor is allocated in scope; the caller
// releases them together with whatever it allocates later.
func Prepare(scope *tensor.Scope, raw model.RawImage) (*tensor.Tensor, error) {
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}

	decoded := scope.Zeros(tensor.Shape{raw.Height, raw.Width, raw.Channels})
	src := decoded.Data()
	for i, p := range raw.Pixels {
		src[i] = float32(p)
	}

	resized := scope.Zeros(tensor.Shape{Size, Size, Channels})
	ResizeBilinear(src, raw.Height, raw.Width, Channels, resized.Data(), Size, Size)

	expanded, err := scope.Reshape(resized, InputShape)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	}

	normalized := scope.Zeros(InputShape)
	dst := normalized.Data()
	for i, v := range expanded.Data() {
		dst[i] = clampUnit(Normalize(v))
	}
	return normalized, nil
}

// ResizeBilinear resamples an HWC float image with the same sampling as
// TensorFlow's resize_bilinear with align_corners=false and
// half_pixel_centers=false: output pixel i reads source coordinate
// i*in/out, interpolating towards the next pixel and clamping at the edge.
func ResizeBilinear(src []float32, inH, inW, ch int, dst []float32, outH, outW int) {
	rowScale := float64(inH) / float64(outH)
	colScale := float64(inW) / float64(outW)

	x0 := make([]int, outW)
	x1 := make([]int, outW)
	xf := make([]float32, outW)
	for x := 0; x < outW; x++ {
		x0[x], x1[x], xf[x] = sampleAxis(float64(x)*colScale, inW)
	}

	for y := 0; y < outH; y++ {
		y0, y1, yf := sampleAxis(float64(y)*rowScale, inH)
		top := src[y0*inW*ch:]
		bottom := src[y1*inW*ch:]
		out := dst[y*outW*ch:]
		for x := 0; x < outW; x++ {
			l, r, f := x0[x]*ch, x1[x]*ch, xf[x]
			for c := 0; c < ch; c++ {
				tl, tr := top[l+c], top[r+c]
				bl, br := bottom[l+c], bottom[r+c]
				t := tl + (tr-tl)*f
				b := bl + (br-bl)*f
				out[x*ch+c] = t + (b-t)*yf
			}
		}
	}
}

func sampleAxis(pos float64, size int) (lo, hi int, frac float32) {
	fl := math.Floor(pos)
	lo = int(fl)
	if lo < 0 {
		lo = 0
	}
	hi = int(math.Ceil(pos))
	if hi > size-1 {
		hi = size - 1
	}
	if lo > size-1 {
		lo = size - 1
	}
	return lo, hi, float32(pos - fl)
}

func clampUnit(v float32) float32 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}
