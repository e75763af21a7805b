package preprocess

import "errors"

// ErrDimensionMismatch reports a RawImage that violates its own invariants.
// It indicates a programming error upstream, never bad user input.
var ErrDimensionMismatch = errors.New("dimension mismatch")
