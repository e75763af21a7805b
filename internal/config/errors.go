package config

import "errors"

var (
	// ErrInvalidConfig marks a configuration that loaded but fails Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps file, env or decode failures while layering sources.
	ErrLoadConfig = errors.New("load config")
)
