// Package model holds the value types exchanged between pipeline stages.
package model

import (
	"errors"
	"fmt"
)

// RGBChannels is the only channel count the pipeline accepts. Samples are
// always ordered R, G, B.
const RGBChannels = 3

// ErrInvalidImage reports a RawImage whose dimensions and pixel buffer disagree.
var ErrInvalidImage = errors.New("invalid raw image")

// RawImage is a decoded image: row-major, interleaved R,G,B uint8 samples.
// It is produced once by the decoder and never mutated afterwards.
type RawImage struct {
	Width    int
	Height   int
	Channels int
	Pixels   []uint8
}

// Validate checks the dimension invariants.
func (r RawImage) Validate() error {
	switch {
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("%w: non-positive size %dx%d", ErrInvalidImage, r.Width, r.Height)
	case r.Channels != RGBChannels:
		return fmt.Errorf("%w: %d channels, want %d", ErrInvalidImage, r.Channels, RGBChannels)
	case len(r.Pixels) != r.Width*r.Height*r.Channels:
		return fmt.Errorf("%w: %d samples for %dx%dx%d", ErrInvalidImage, len(r.Pixels), r.Width, r.Height, r.Channels)
	}
	return nil
}

// At returns the sample at column x, row y, channel c.
func (r RawImage) At(x, y, c int) uint8 {
	return r.Pixels[(y*r.Width+x)*r.Channels+c]
}
