// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and SKINCHECK_ env vars.
// - External errors must be wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"strings"
)

// Supported model formats.
const (
	FormatTFJS   = "tfjs"
	FormatONNX   = "onnx"
	FormatTFLite = "tflite"
)

// Supported image decoders.
const (
	DecoderGo     = "go"
	DecoderOpenCV = "opencv"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogJSON switches log output to JSON lines.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelURL is the base location of the model assets (http(s):// or file path).
	ModelURL string `koanf:"model_url"`

	// ModelFormat selects the asset layout and inference backend: tfjs, onnx, tflite.
	ModelFormat string `koanf:"model_format"`

	// ONNXLibraryPath points at the onnxruntime shared library (onnx format only).
	ONNXLibraryPath string `koanf:"onnx_library_path"`

	// InferenceThreads bounds intra-op threads for native backends (0 = backend default).
	InferenceThreads int `koanf:"inference_threads"`

	// AssetTimeoutMS bounds each asset fetch.
	AssetTimeoutMS int `koanf:"asset_timeout_ms"`

	// QueueSize bounds the in-memory analysis job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count"`

	// MaxImageBytes caps uploaded image size.
	MaxImageBytes int64 `koanf:"max_image_bytes"`

	// MaxImagePixels caps decoded width*height.
	MaxImagePixels int `koanf:"max_image_pixels"`

	// ImageDecoder selects the decoder: go (image/* + x/image) or opencv (-tags gocv).
	ImageDecoder string `koanf:"image_decoder"`

	// WeatherURL is the forecast endpoint for the UV advisory; empty disables it.
	WeatherURL string `koanf:"weather_url"`

	// WeatherCacheTTLSeconds controls how long advisory lookups are cached.
	WeatherCacheTTLSeconds int `koanf:"weather_cache_ttl_s"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		ModelURL:               "https://teachablemachine.withgoogle.com/models/tC3cWVP4h/",
		ModelFormat:            FormatTFJS,
		InferenceThreads:       0,
		AssetTimeoutMS:         30_000,
		QueueSize:              16,
		WorkerCount:            1,
		MaxImageBytes:          10 << 20,
		MaxImagePixels:         40_000_000,
		ImageDecoder:           DecoderGo,
		WeatherURL:             "https://api.open-meteo.com/v1/forecast",
		WeatherCacheTTLSeconds: 600,
	}
}

// Validate checks the invariants Load relies on.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ModelURL) == "" {
		return fmt.Errorf("%w: model_url must not be empty", ErrInvalidConfig)
	}
	switch c.ModelFormat {
	case FormatTFJS, FormatONNX, FormatTFLite:
	default:
		return fmt.Errorf("%w: unknown model_format %q", ErrInvalidConfig, c.ModelFormat)
	}
	switch c.ImageDecoder {
	case DecoderGo, DecoderOpenCV:
	default:
		return fmt.Errorf("%w: unknown image_decoder %q", ErrInvalidConfig, c.ImageDecoder)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("%w: max_image_bytes must be positive", ErrInvalidConfig)
	}
	return nil
}
