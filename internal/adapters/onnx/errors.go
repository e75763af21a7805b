package onnx

import "errors"

var (
	// ErrRuntime reports that the onnxruntime shared library could not be
	// located or initialized.
	ErrRuntime = errors.New("onnx runtime unavailable")

	// ErrGraph reports a model graph the backend cannot serve.
	ErrGraph = errors.New("unsupported onnx graph")

	// ErrOutput reports a session output that is not a float32 tensor of the
	// declared length.
	ErrOutput = errors.New("unexpected onnx output")
)
