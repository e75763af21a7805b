package api

import (
	"errors"
	"net/http"

	"github.com/okian/skincheck/internal/adapters/mq/queue"
	"github.com/okian/skincheck/internal/domain/inference"
)

// AnalyzeHandler accepts images for asynchronous classification.
type AnalyzeHandler struct {
	deps     Dependencies
	maxBytes int64
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(deps Dependencies, maxBytes int64) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps, maxBytes: maxBytes}
}

// HandleAnalyze handles POST /analyze requests. The result is read later
// from GET /result; a newer submission supersedes an older one.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	data, err := readImage(w, r, h.maxBytes)
	if err != nil {
		status, code := uploadStatus(err)
		writeError(w, status, code, WrapKind(op, ErrBadRequest, err))
		return
	}

	accepted, err := h.deps.Submit(r.Context(), data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, accepted)
	case errors.Is(err, inference.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrNotReady, err))
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, queue.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "stopped", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}
