// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
)

const defaultMaxBodyBytes = 10 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Classify runs one synchronous classification and publishes it as the
	// newest result.
	Classify(ctx context.Context, image []byte) (model.ClassificationResult, error)

	// Submit queues an image for asynchronous classification.
	Submit(ctx context.Context, image []byte) (types.Accepted, error)

	// Current returns what the user should see now.
	Current() model.ClassificationResult

	// Status reports model readiness.
	Status() types.Status

	// Labels returns the ordered label list once the model is ready.
	Labels() ([]string, error)

	// Advise returns the sun-protection advisory for a location.
	Advise(ctx context.Context, lat, lon float64) (types.Advisory, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	classifyHandler *ClassifyHandler
	analyzeHandler  *AnalyzeHandler
	resultHandler   *ResultHandler
	statusHandler   *StatusHandler
	labelsHandler   *LabelsHandler
	weatherHandler  *WeatherHandler
}

// Option configures a Server.
type Option func(*settings)

type settings struct {
	maxBodyBytes int64
	log          logger.Logger
}

// WithMaxBodyBytes caps uploaded image size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := settings{maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logger.Named("api")
	}
	return &Server{
		healthHandler:   NewHealthHandler(deps.Status),
		statsHandler:    NewStatsHandler(statsProvider),
		classifyHandler: NewClassifyHandler(deps, s.maxBodyBytes, s.log),
		analyzeHandler:  NewAnalyzeHandler(deps, s.maxBodyBytes),
		resultHandler:   NewResultHandler(deps),
		statusHandler:   NewStatusHandler(deps),
		labelsHandler:   NewLabelsHandler(deps),
		weatherHandler:  NewWeatherHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/classify", MetricsMiddleware(s.classifyHandler.HandleClassify, "classify"))
	mux.HandleFunc("/analyze", MetricsMiddleware(s.analyzeHandler.HandleAnalyze, "analyze"))
	mux.HandleFunc("/result", MetricsMiddleware(s.resultHandler.HandleResult, "result"))
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/labels", MetricsMiddleware(s.labelsHandler.HandleLabels, "labels"))
	mux.HandleFunc("/weather", MetricsMiddleware(s.weatherHandler.HandleWeather, "weather"))
}

type errorResponse struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Result  *model.ClassificationResult `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeResultError reports a failed classification together with the
// result the user is shown for it.
func writeResultError(w http.ResponseWriter, status int, code string, err error, res model.ClassificationResult) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg, Result: &res})
}
