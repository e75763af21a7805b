package tflite

import "errors"

var (
	// ErrUnavailable reports a binary built without TensorFlow Lite support.
	ErrUnavailable = errors.New("tflite support not compiled in (build with -tags tflite)")

	// ErrInterpreter reports a model the interpreter could not load or run.
	ErrInterpreter = errors.New("tflite interpreter failure")
)
