package assetstore

import (
	"errors"

	"github.com/okian/skincheck/internal/domain/asset"
)

var (
	// ErrNotFound aliases the domain sentinel so callers can match either.
	ErrNotFound = asset.ErrNotFound
	// ErrTransport reports a failed request or an unexpected status.
	ErrTransport = errors.New("asset transport error")
	// ErrTooLarge reports a blob over the configured size limit.
	ErrTooLarge = errors.New("asset too large")
)
