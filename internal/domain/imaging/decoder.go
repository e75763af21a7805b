// Package imaging turns encoded image bytes into RGB RawImages.
//
// Supported formats: JPEG, PNG, WebP, BMP and TIFF. Output samples are
// always interleaved R,G,B in row-major order. Grayscale sources are
// expanded to three equal channels; alpha is dropped without
// premultiplication. Palette and alpha-only color models are rejected.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG

	orient "github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/pkg/logger"
)

// Decoder decodes image bytes. It is stateless and safe for concurrent use.
type Decoder struct {
	maxPixels  int
	autoOrient bool
	log        logger.Logger
}

// New creates a Decoder.
func New(opts ...Option) *Decoder {
	d := &Decoder{autoOrient: true}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Named("decoder")
	}
	return d
}

// Decode converts encoded bytes into a RawImage.
func (d *Decoder) Decode(ctx context.Context, data []byte) (model.RawImage, error) {
	if len(data) == 0 {
		return model.RawImage{}, fmt.Errorf("%w: empty input", ErrDecode)
	}
	if err := ctx.Err(); err != nil {
		return model.RawImage{}, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return model.RawImage{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := d.checkConfig(cfg); err != nil {
		return model.RawImage{}, err
	}

	img, err := orient.Decode(bytes.NewReader(data), orient.AutoOrientation(d.autoOrient))
	if err != nil {
		return model.RawImage{}, fmt.Errorf("%w: %s: %w", ErrDecode, format, err)
	}

	raw, err := toRGB(img)
	if err != nil {
		return model.RawImage{}, err
	}
	d.log.Debug(ctx, "image decoded",
		logger.String("format", format),
		logger.Int("width", raw.Width),
		logger.Int("height", raw.Height))
	return raw, nil
}

func (d *Decoder) checkConfig(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: zero dimension %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if d.maxPixels > 0 && cfg.Width*cfg.Height > d.maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, d.maxPixels)
	}
	return checkColorModel(cfg.ColorModel)
}

func checkColorModel(m color.Model) error {
	if _, ok := m.(color.Palette); ok {
		return fmt.Errorf("%w: palette color model", ErrDecode)
	}
	if m == color.AlphaModel || m == color.Alpha16Model {
		return fmt.Errorf("%w: alpha-only color model", ErrDecode)
	}
	return nil
}

// toRGB copies img into interleaved RGB samples.
func toRGB(img image.Image) (model.RawImage, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return model.RawImage{}, fmt.Errorf("%w: zero dimension %dx%d", ErrDecode, w, h)
	}
	out := model.RawImage{Width: w, Height: h, Channels: model.RGBChannels, Pixels: make([]uint8, w*h*model.RGBChannels)}
	px := out.Pixels

	switch src := img.(type) {
	case *image.Paletted:
		return model.RawImage{}, fmt.Errorf("%w: palette color model", ErrDecode)
	case *image.Alpha, *image.Alpha16:
		return model.RawImage{}, fmt.Errorf("%w: alpha-only color model", ErrDecode)
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*4]
			for x := 0; x < w; x++ {
				o := (y*w + x) * 3
				px[o], px[o+1], px[o+2] = row[x*4], row[x*4+1], row[x*4+2]
			}
		}
	case *image.YCbCr:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := src.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				o := (y*w + x) * 3
				px[o], px[o+1], px[o+2] = color.YCbCrToRGB(c.Y, c.Cb, c.Cr)
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := src.GrayAt(b.Min.X+x, b.Min.Y+y).Y
				o := (y*w + x) * 3
				px[o], px[o+1], px[o+2] = v, v, v
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				o := (y*w + x) * 3
				px[o], px[o+1], px[o+2] = c.R, c.G, c.B
			}
		}
	}
	return out, nil
}
