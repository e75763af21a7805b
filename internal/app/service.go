// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skincheck/internal/adapters/assetstore"
	"github.com/okian/skincheck/internal/adapters/mq/queue"
	"github.com/okian/skincheck/internal/adapters/mq/worker"
	"github.com/okian/skincheck/internal/adapters/onnx"
	"github.com/okian/skincheck/internal/adapters/tfjs"
	"github.com/okian/skincheck/internal/adapters/tflite"
	"github.com/okian/skincheck/internal/adapters/weather"
	"github.com/okian/skincheck/internal/config"
	"github.com/okian/skincheck/internal/domain/asset"
	"github.com/okian/skincheck/internal/domain/imaging"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/pipeline"
	"github.com/okian/skincheck/internal/domain/resolve"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

const stopTimeout = 30 * time.Second

// Service implements the API dependencies for the classifier.
type Service struct {
	mu sync.RWMutex

	// Core components
	loader   *inference.Loader
	pipeline *pipeline.Pipeline
	session  *pipeline.Session
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	weather  *weather.Client

	// Overrides
	store   asset.Store
	backend inference.Backend
	decoder pipeline.Decoder

	// Configuration
	modelURL     string
	format       string
	onnxLibrary  string
	threads      int
	assetTimeout time.Duration
	workerCount  int
	queueSize    int
	maxPixels    int
	decoderName  string
	weatherURL   string
	weatherTTL   time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		modelURL:     config.New().ModelURL,
		format:       config.FormatTFJS,
		assetTimeout: 30 * time.Second,
		workerCount:  1,
		queueSize:    16,
		weatherTTL:   10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig maps configuration onto service options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithModel(cfg.ModelURL, cfg.ModelFormat),
		WithONNXLibrary(cfg.ONNXLibraryPath),
		WithInferenceThreads(cfg.InferenceThreads),
		WithAssetTimeout(time.Duration(cfg.AssetTimeoutMS) * time.Millisecond),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithMaxImagePixels(cfg.MaxImagePixels),
		WithImageDecoder(cfg.ImageDecoder),
		WithWeather(cfg.WeatherURL, time.Duration(cfg.WeatherCacheTTLSeconds)*time.Second),
	}
}

// BackendFor returns the inference backend serving format.
func BackendFor(format, onnxLibrary string, threads int) (inference.Backend, error) {
	switch format {
	case config.FormatTFJS:
		return tfjs.New(), nil
	case config.FormatONNX:
		return onnx.New(onnx.WithLibraryPath(onnxLibrary), onnx.WithThreads(threads)), nil
	case config.FormatTFLite:
		return tflite.New(tflite.WithThreads(threads)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// DecoderFor returns the image decoder registered under name.
func DecoderFor(name string, maxPixels int) (pipeline.Decoder, error) {
	switch name {
	case "", config.DecoderGo:
		return imaging.New(imaging.WithMaxPixels(maxPixels)), nil
	case config.DecoderOpenCV:
		if !imaging.OpenCVAvailable {
			return nil, fmt.Errorf("%w: opencv (build with -tags gocv)", imaging.ErrUnavailable)
		}
		return imaging.NewOpenCV(), nil
	}
	return nil, fmt.Errorf("%w: unknown decoder %q", imaging.ErrUnavailable, name)
}

// Start wires the components and begins loading the model in the
// background. It returns before the model is ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	layout, err := asset.LayoutFor(s.format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}
	backend := s.backend
	if backend == nil {
		if backend, err = BackendFor(s.format, s.onnxLibrary, s.threads); err != nil {
			return err
		}
	}
	store := s.store
	if store == nil {
		store = assetstore.ForBase(s.modelURL, assetstore.WithTimeout(s.assetTimeout))
	}
	decoder := s.decoder
	if decoder == nil {
		if decoder, err = DecoderFor(s.decoderName, s.maxPixels); err != nil {
			return err
		}
	}

	s.logger.Info(ctx, "starting classifier service...",
		logger.String("model", s.modelURL),
		logger.String("format", s.format),
		logger.String("backend", backend.Name()))

	s.loader = inference.NewLoader(store, layout, s.modelURL, backend,
		inference.WithFetchTimeout(s.assetTimeout),
		inference.WithLogger(s.logger.Named("loader")))
	s.loader.Start(ctx)

	s.pipeline = pipeline.New(s.loader, decoder, pipeline.WithLogger(s.logger.Named("pipeline")))
	s.session = pipeline.NewSession(s.loader, pipeline.WithSessionLogger(s.logger.Named("session")))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.pipeline, s.session,
		worker.WithLogger(s.logger.Named("worker")))
	s.pool.Start(ctx)
	s.weather = weather.New(s.weatherURL,
		weather.WithCacheTTL(s.weatherTTL),
		weather.WithLogger(s.logger.Named("weather")))

	s.started = true
	s.logger.Info(ctx, "classifier service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize))
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping classifier service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	if err := s.loader.Close(); err != nil {
		s.logger.Warn(ctx, "closing model failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "classifier service stopped")
}

func (s *Service) components() (*inference.Loader, *pipeline.Pipeline, *pipeline.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loader, s.pipeline, s.session, s.started
}

// Wait blocks until the model load has finished or ctx is done and
// returns the load error, if any.
func (s *Service) Wait(ctx context.Context) error {
	loader, _, _, ok := s.components()
	if !ok {
		return ErrNotStarted
	}
	return loader.Wait(ctx)
}

// Classify runs one classification now and publishes it as the newest
// result unless a later request has begun meanwhile.
func (s *Service) Classify(ctx context.Context, image []byte) (model.ClassificationResult, error) {
	_, p, sess, ok := s.components()
	if !ok {
		return resolve.Loading(), ErrNotStarted
	}
	res, _, err := sess.Run(ctx, p, image)
	return res, err
}

// Submit queues image for the workers under a fresh ticket. The display
// state switches to analyzing at once.
func (s *Service) Submit(ctx context.Context, image []byte) (types.Accepted, error) {
	loader, _, sess, ok := s.components()
	if !ok {
		return types.Accepted{}, ErrNotStarted
	}
	if !loader.Ready() {
		return types.Accepted{}, inference.ErrModelUnavailable
	}

	ticket := sess.Begin()
	job := model.Job{
		ID:          uuid.NewString(),
		Ticket:      ticket,
		Image:       image,
		SubmittedAt: time.Now(),
	}
	if !s.queue.Enqueue(ctx, job) {
		err := queue.ErrFull
		if s.queue.IsClosed() {
			err = queue.ErrStopped
		}
		sess.Complete(ctx, ticket, resolve.Failed())
		return types.Accepted{}, err
	}

	s.logger.Debug(ctx, "analysis queued",
		logger.String("job_id", job.ID),
		logger.Uint64("ticket", ticket))
	return types.Accepted{JobID: job.ID, Ticket: ticket, Status: "accepted"}, nil
}

// Current returns what the user should see now.
func (s *Service) Current() model.ClassificationResult {
	_, _, sess, ok := s.components()
	if !ok {
		return resolve.Loading()
	}
	return sess.Current()
}

// Status reports model readiness.
func (s *Service) Status() types.Status {
	loader, _, _, ok := s.components()
	if !ok {
		return types.Status{State: string(inference.StatusLoading), Message: resolve.MessageLoading, Format: s.format}
	}
	st := types.Status{
		State:  string(loader.Status()),
		Format: loader.Format(),
	}
	switch loader.Status() {
	case inference.StatusReady:
		st.Message = resolve.MessageReady
		st.Labels = len(loader.Engine().Labels())
	case inference.StatusFailed:
		st.Message = resolve.MessageLoadFailed
		if err := loader.Err(); err != nil {
			st.Error = err.Error()
		}
	default:
		st.Message = resolve.MessageLoading
	}
	return st
}

// Labels returns the model labels once ready.
func (s *Service) Labels() ([]string, error) {
	loader, _, _, ok := s.components()
	if !ok {
		return nil, ErrNotStarted
	}
	eng := loader.Engine()
	if eng == nil || !eng.Ready() {
		return nil, inference.ErrModelUnavailable
	}
	return eng.Labels(), nil
}

// Advise returns the sun-protection advisory for a location.
func (s *Service) Advise(ctx context.Context, lat, lon float64) (types.Advisory, error) {
	s.mu.RLock()
	w := s.weather
	s.mu.RUnlock()
	if w == nil {
		return types.Advisory{}, ErrNotStarted
	}
	return w.Advise(ctx, lat, lon)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"format":      s.format,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["modelStatus"] = string(s.loader.Status())
		stats["processed"] = s.pool.Processed()
		stats["skipped"] = s.pool.Skipped()
		stats["latestTicket"] = s.session.Latest()
		stats["liveTensors"] = s.loader.Tracker().Live()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}
