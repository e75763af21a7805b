package service

import (
	"time"

	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/pipeline"
	"github.com/okian/skincheck/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModel sets where the model assets live and their format.
func WithModel(baseURL, format string) Option {
	return func(s *Service) {
		if baseURL != "" {
			s.modelURL = baseURL
		}
		if format != "" {
			s.format = format
		}
	}
}

// WithONNXLibrary points the onnx backend at the runtime shared library.
func WithONNXLibrary(path string) Option {
	return func(s *Service) {
		s.onnxLibrary = path
	}
}

// WithInferenceThreads bounds intra-op threads of native backends.
func WithInferenceThreads(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.threads = n
		}
	}
}

// WithAssetTimeout bounds the whole model load.
func WithAssetTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.assetTimeout = d
		}
	}
}

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the analysis queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMaxImagePixels caps decoded image area.
func WithMaxImagePixels(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// WithWeather enables the UV advisory against a forecast endpoint.
func WithWeather(url string, ttl time.Duration) Option {
	return func(s *Service) {
		s.weatherURL = url
		if ttl > 0 {
			s.weatherTTL = ttl
		}
	}
}

// WithStore overrides the asset store derived from the model URL.
func WithStore(store asset.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithBackend overrides the backend derived from the model format.
func WithBackend(b inference.Backend) Option {
	return func(s *Service) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithImageDecoder selects a decoder by name (see DecoderFor).
func WithImageDecoder(name string) Option {
	return func(s *Service) {
		s.decoderName = name
	}
}

// WithDecoder overrides the image decoder.
func WithDecoder(d pipeline.Decoder) Option {
	return func(s *Service) {
		if d != nil {
			s.decoder = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
