//go:build !gocv

package imaging

import (
	"context"

	"github.com/okian/skincheck/internal/domain/model"
)

// OpenCVAvailable reports whether this binary links OpenCV.
const OpenCVAvailable = false

// OpenCVDecoder stands in for the OpenCV decoder in builds without -tags gocv.
type OpenCVDecoder struct{}

// NewOpenCV returns a decoder that always fails with ErrUnavailable.
func NewOpenCV() *OpenCVDecoder { return &OpenCVDecoder{} }

// Decode always fails with ErrUnavailable.
func (OpenCVDecoder) Decode(context.Context, []byte) (model.RawImage, error) {
	return model.RawImage{}, ErrUnavailable
}
