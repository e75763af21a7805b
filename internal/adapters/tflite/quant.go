package tflite

import "math"

// quantize maps normalized floats onto an affine uint8 grid.
func quantize(src []float32, scale float64, zeroPoint int, dst []uint8) {
	if scale == 0 {
		scale = 1
	}
	for i, v := range src {
		q := math.Round(float64(v)/scale) + float64(zeroPoint)
		dst[i] = uint8(min(max(q, 0), 255))
	}
}

// dequantize is the inverse of quantize.
func dequantize(src []uint8, scale float64, zeroPoint int, dst []float32) {
	if scale == 0 {
		scale = 1.0 / 255
	}
	for i, q := range src {
		dst[i] = float32(float64(int(q)-zeroPoint) * scale)
	}
}
