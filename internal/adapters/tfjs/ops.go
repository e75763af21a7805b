package tfjs

import "math"

// Kernels below operate on batch-1 NHWC buffers. Shapes are validated
// when the graph is compiled, so they do no bounds reasoning of their own.

type window struct {
	kh, kw     int
	sh, sw     int
	dh, dw     int
	padT, padL int
	outH, outW int
}

// planWindow computes output size and leading padding the way TensorFlow
// does for "same" and "valid" padding.
func planWindow(inH, inW, kh, kw, sh, sw, dh, dw int, same bool) window {
	ekh := (kh-1)*dh + 1
	ekw := (kw-1)*dw + 1
	w := window{kh: kh, kw: kw, sh: sh, sw: sw, dh: dh, dw: dw}
	if same {
		w.outH = (inH + sh - 1) / sh
		w.outW = (inW + sw - 1) / sw
		padH := max((w.outH-1)*sh+ekh-inH, 0)
		padW := max((w.outW-1)*sw+ekw-inW, 0)
		w.padT, w.padL = padH/2, padW/2
	} else {
		w.outH = (inH-ekh)/sh + 1
		w.outW = (inW-ekw)/sw + 1
	}
	return w
}

func conv2d(in []float32, inH, inW, cin int, kernel []float32, cout int, w window, out []float32) {
	acc := make([]float32, cout)
	for oy := 0; oy < w.outH; oy++ {
		for ox := 0; ox < w.outW; ox++ {
			clear(acc)
			for ky := 0; ky < w.kh; ky++ {
				iy := oy*w.sh + ky*w.dh - w.padT
				if iy < 0 || iy >= inH {
					continue
				}
				for kx := 0; kx < w.kw; kx++ {
					ix := ox*w.sw + kx*w.dw - w.padL
					if ix < 0 || ix >= inW {
						continue
					}
					px := in[(iy*inW+ix)*cin : (iy*inW+ix+1)*cin]
					kbase := (ky*w.kw + kx) * cin * cout
					for ci, v := range px {
						if v == 0 {
							continue
						}
						krow := kernel[kbase+ci*cout : kbase+(ci+1)*cout]
						for co, k := range krow {
							acc[co] += v * k
						}
					}
				}
			}
			copy(out[(oy*w.outW+ox)*cout:], acc)
		}
	}
}

func depthwiseConv2d(in []float32, inH, inW, cin int, kernel []float32, mult int, w window, out []float32) {
	cout := cin * mult
	for oy := 0; oy < w.outH; oy++ {
		for ox := 0; ox < w.outW; ox++ {
			o := out[(oy*w.outW+ox)*cout : (oy*w.outW+ox+1)*cout]
			clear(o)
			for ky := 0; ky < w.kh; ky++ {
				iy := oy*w.sh + ky*w.dh - w.padT
				if iy < 0 || iy >= inH {
					continue
				}
				for kx := 0; kx < w.kw; kx++ {
					ix := ox*w.sw + kx*w.dw - w.padL
					if ix < 0 || ix >= inW {
						continue
					}
					px := in[(iy*inW+ix)*cin : (iy*inW+ix+1)*cin]
					kbase := (ky*w.kw + kx) * cin * mult
					for ci, v := range px {
						for m := 0; m < mult; m++ {
							o[ci*mult+m] += v * kernel[kbase+ci*mult+m]
						}
					}
				}
			}
		}
	}
}

func pool2d(in []float32, inH, inW, c int, w window, out []float32, avg bool) {
	for oy := 0; oy < w.outH; oy++ {
		for ox := 0; ox < w.outW; ox++ {
			o := out[(oy*w.outW+ox)*c : (oy*w.outW+ox+1)*c]
			for ch := range o {
				best := float32(math.Inf(-1))
				var sum float32
				n := 0
				for ky := 0; ky < w.kh; ky++ {
					iy := oy*w.sh + ky - w.padT
					if iy < 0 || iy >= inH {
						continue
					}
					for kx := 0; kx < w.kw; kx++ {
						ix := ox*w.sw + kx - w.padL
						if ix < 0 || ix >= inW {
							continue
						}
						v := in[(iy*inW+ix)*c+ch]
						best = max(best, v)
						sum += v
						n++
					}
				}
				if avg {
					if n > 0 {
						o[ch] = sum / float32(n)
					}
				} else {
					o[ch] = best
				}
			}
		}
	}
}

func addBias(data, bias []float32) {
	c := len(bias)
	for i := range data {
		data[i] += bias[i%c]
	}
}

// affine applies per-channel y = x*scale + shift (folded batch norm).
func affine(data, scale, shift []float32) {
	c := len(scale)
	for i := range data {
		ch := i % c
		data[i] = data[i]*scale[ch] + shift[ch]
	}
}

func dense(in []float32, kernel []float32, units int, out []float32) {
	clear(out)
	for i, v := range in {
		if v == 0 {
			continue
		}
		row := kernel[i*units : (i+1)*units]
		for j, k := range row {
			out[j] += v * k
		}
	}
}

func globalAvgPool(in []float32, hw, c int, out []float32) {
	clear(out)
	for p := 0; p < hw; p++ {
		px := in[p*c : (p+1)*c]
		for ch, v := range px {
			out[ch] += v
		}
	}
	inv := 1 / float32(hw)
	for ch := range out {
		out[ch] *= inv
	}
}

func zeroPad(in []float32, inH, inW, c, top, left, outH, outW int, out []float32) {
	clear(out)
	for y := 0; y < inH; y++ {
		src := in[y*inW*c : (y+1)*inW*c]
		copy(out[((y+top)*outW+left)*c:], src)
	}
}

// softmax normalizes the last axis of size n in place.
func softmax(data []float32, n int) {
	for off := 0; off+n <= len(data); off += n {
		row := data[off : off+n]
		m := row[0]
		for _, v := range row[1:] {
			m = max(m, v)
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - m))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
}

type activation func(data []float32, lastDim int)

func activationFor(name string) (activation, bool) {
	switch name {
	case "", "linear":
		return nil, true
	case "relu":
		return func(d []float32, _ int) { relu(d, -1, 0, 0) }, true
	case "relu6":
		return func(d []float32, _ int) { relu(d, 6, 0, 0) }, true
	case "sigmoid":
		return func(d []float32, _ int) {
			for i, v := range d {
				d[i] = float32(1 / (1 + math.Exp(-float64(v))))
			}
		}, true
	case "tanh":
		return func(d []float32, _ int) {
			for i, v := range d {
				d[i] = float32(math.Tanh(float64(v)))
			}
		}, true
	case "softmax":
		return softmax, true
	}
	return nil, false
}

// relu clips below threshold (scaled by slope) and above maxValue when
// maxValue is non-negative.
func relu(data []float32, maxValue, slope, threshold float32) {
	for i, v := range data {
		switch {
		case v < threshold:
			v = slope * (v - threshold)
		case maxValue >= 0 && v > maxValue:
			v = maxValue
		}
		data[i] = v
	}
}

func sqrt32(v float32) float32 { return float32(math.Sqrt(float64(v))) }
