package asset

import "errors"

// ErrModelUnavailable covers every way a model can fail to become usable:
// transport failure, malformed metadata, a topology that does not match its
// weights, or simply not being loaded yet.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrUnknownFormat is returned by LayoutFor for unsupported formats.
var ErrUnknownFormat = errors.New("unknown model format")

// ErrNotFound is returned by stores when a reference does not exist.
var ErrNotFound = errors.New("asset not found")
