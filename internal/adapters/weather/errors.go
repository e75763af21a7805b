package weather

import "errors"

var (
	// ErrDisabled is returned when no forecast endpoint is configured.
	ErrDisabled = errors.New("weather advisory disabled")

	// ErrInvalidCoordinates rejects latitude/longitude outside their ranges.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrUpstream wraps transport and decoding failures of the forecast API.
	ErrUpstream = errors.New("forecast unavailable")
)
