//go:build !tflite

// Package tflite serves TensorFlow Lite flatbuffer models. The interpreter
// needs the native library, so the real backend is behind the tflite build
// tag.
package tflite

import (
	"context"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/pkg/logger"
)

// Backend always fails to compile in builds without the tflite tag.
type Backend struct {
	threads int
	log     logger.Logger
}

// New creates a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements inference.Backend.
func (*Backend) Name() string { return "tflite" }

// Compile implements inference.Backend.
func (*Backend) Compile(context.Context, *asset.ModelAsset) (inference.Network, error) {
	return nil, ErrUnavailable
}
