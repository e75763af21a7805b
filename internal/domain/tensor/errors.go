package tensor

import "errors"

// Sentinel kinds for tensor errors.
var (
	ErrShape = errors.New("tensor shape mismatch")
)
