package imaging

import "github.com/okian/skincheck/pkg/logger"

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxPixels rejects images whose width*height exceeds n before the full
// decode allocates them. Zero disables the limit.
func WithMaxPixels(n int) Option {
	return func(d *Decoder) {
		if n >= 0 {
			d.maxPixels = n
		}
	}
}

// WithAutoOrientation toggles EXIF orientation handling (on by default).
func WithAutoOrientation(enabled bool) Option {
	return func(d *Decoder) {
		d.autoOrient = enabled
	}
}

// WithLogger sets the decoder logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}
