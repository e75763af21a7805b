//go:build gocv

package imaging

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/okian/skincheck/internal/domain/model"
)

// OpenCVDecoder decodes through OpenCV's imdecode. It accepts every format
// the linked OpenCV build supports; palette sources are expanded by OpenCV
// rather than rejected, and EXIF orientation is applied by imdecode.
type OpenCVDecoder struct{}

// OpenCVAvailable reports whether this binary links OpenCV.
const OpenCVAvailable = true

// NewOpenCV creates an OpenCV-backed decoder.
func NewOpenCV() *OpenCVDecoder { return &OpenCVDecoder{} }

// Decode converts encoded bytes into a RawImage.
func (OpenCVDecoder) Decode(ctx context.Context, data []byte) (model.RawImage, error) {
	if len(data) == 0 {
		return model.RawImage{}, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if err := ctx.Err(); err != nil {
		return model.RawImage{}, err
	}

	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return model.RawImage{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer bgr.Close()
	if bgr.Empty() || bgr.Cols() == 0 || bgr.Rows() == 0 {
		return model.RawImage{}, fmt.Errorf("%w: opencv could not decode input", ErrDecode)
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)

	pix := rgb.ToBytes()
	raw := model.RawImage{Width: rgb.Cols(), Height: rgb.Rows(), Channels: model.RGBChannels, Pixels: pix}
	if err := raw.Validate(); err != nil {
		return model.RawImage{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return raw, nil
}
