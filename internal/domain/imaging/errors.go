package imaging

import "errors"

// ErrDecode reports bytes that cannot become an RGB RawImage: empty input,
// non-image data, unsupported color models, zero-sized or oversized images.
var ErrDecode = errors.New("decode error")

// ErrUnavailable reports a decoder that is not linked into this binary.
var ErrUnavailable = errors.New("decoder unavailable")
