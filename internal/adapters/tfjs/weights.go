package tfjs

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/tensor"
)

// weight is one decoded tensor from the manifest.
type weight struct {
	shape tensor.Shape
	data  []float32
}

// decodeWeights concatenates each group's shards and slices out every
// tensor the group declares, dequantizing where needed.
func decodeWeights(a *asset.ModelAsset, groups []asset.WeightGroup) (map[string]weight, error) {
	out := make(map[string]weight)
	for gi, g := range groups {
		var buf []byte
		for _, p := range g.Paths {
			b, ok := a.Weight(p)
			if !ok {
				return nil, fmt.Errorf("%w: group %d: shard %s not loaded", ErrWeights, gi, p)
			}
			buf = append(buf, b...)
		}

		off := 0
		for _, spec := range g.Weights {
			n := tensor.Shape(spec.Shape).Size()
			if len(spec.Shape) == 0 {
				n = 1
			}
			data, used, err := decodeOne(buf[off:], n, spec)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrWeights, spec.Name, err)
			}
			off += used
			out[spec.Name] = weight{shape: tensor.Shape(spec.Shape).Clone(), data: data}
		}
		if off != len(buf) {
			return nil, fmt.Errorf("%w: group %d: %d trailing bytes", ErrWeights, gi, len(buf)-off)
		}
	}
	return out, nil
}

func decodeOne(buf []byte, n int, spec asset.WeightSpec) ([]float32, int, error) {
	data := make([]float32, n)

	if q := spec.Quantization; q != nil {
		switch q.DType {
		case "uint8":
			if len(buf) < n {
				return nil, 0, fmt.Errorf("truncated: need %d bytes, have %d", n, len(buf))
			}
			for i := range data {
				data[i] = float32(buf[i])*q.Scale + q.Min
			}
			return data, n, nil
		case "uint16":
			if len(buf) < 2*n {
				return nil, 0, fmt.Errorf("truncated: need %d bytes, have %d", 2*n, len(buf))
			}
			for i := range data {
				data[i] = float32(binary.LittleEndian.Uint16(buf[2*i:]))*q.Scale + q.Min
			}
			return data, 2 * n, nil
		case "float16":
			if len(buf) < 2*n {
				return nil, 0, fmt.Errorf("truncated: need %d bytes, have %d", 2*n, len(buf))
			}
			for i := range data {
				data[i] = halfToFloat(binary.LittleEndian.Uint16(buf[2*i:]))
			}
			return data, 2 * n, nil
		default:
			return nil, 0, fmt.Errorf("unsupported quantization %q", q.DType)
		}
	}

	if len(buf) < 4*n {
		return nil, 0, fmt.Errorf("truncated: need %d bytes, have %d", 4*n, len(buf))
	}
	switch spec.DType {
	case "", "float32":
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
	case "int32":
		for i := range data {
			data[i] = float32(int32(binary.LittleEndian.Uint32(buf[4*i:])))
		}
	default:
		return nil, 0, fmt.Errorf("unsupported dtype %q", spec.DType)
	}
	return data, 4 * n, nil
}

// halfToFloat expands an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}

// weightStore resolves layer parameters by name.
type weightStore struct {
	byName map[string]weight
	used   map[string]bool
}

func newWeightStore(w map[string]weight) *weightStore {
	return &weightStore{byName: w, used: make(map[string]bool)}
}

// get finds "<layer>/<param>", also accepting names prefixed by an outer
// model scope ("outer/<layer>/<param>").
func (s *weightStore) get(layer, param string, shape tensor.Shape) ([]float32, error) {
	key := layer + "/" + param
	w, ok := s.byName[key]
	if !ok {
		suffix := "/" + key
		for name, cand := range s.byName {
			if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
				w, ok, key = cand, true, name
				break
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s not in manifest", ErrWeights, key)
	}
	if shape != nil && !w.shape.Equal(shape) {
		return nil, fmt.Errorf("%w: %s has shape %s, layer needs %s", ErrWeights, key, w.shape, shape)
	}
	s.used[key] = true
	return w.data, nil
}

func (s *weightStore) unused() []string {
	var out []string
	for name := range s.byName {
		if !s.used[name] {
			out = append(out, name)
		}
	}
	return out
}
