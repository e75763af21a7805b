package api

import (
	"errors"
	"net/http"

	"github.com/okian/skincheck/internal/domain/imaging"
	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/preprocess"
	"github.com/okian/skincheck/pkg/logger"
)

// ClassifyHandler handles synchronous classification requests.
type ClassifyHandler struct {
	deps     Dependencies
	maxBytes int64
	log      logger.Logger
}

// NewClassifyHandler creates a new classify handler.
func NewClassifyHandler(deps Dependencies, maxBytes int64, l logger.Logger) *ClassifyHandler {
	return &ClassifyHandler{deps: deps, maxBytes: maxBytes, log: l}
}

// HandleClassify handles POST /classify requests.
func (h *ClassifyHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	const op = "api.classify"
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

	res, err := h.deps.Classify(r.Context(), data)
	if err != nil {
		status, code := classifyStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error(r.Context(), "classification failed", logger.String("code", code), logger.Error(err))
		}
		writeResultError(w, status, code, Wrap(op, err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// classifyStatus maps pipeline failures to a status and error code.
func classifyStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inference.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, imaging.ErrDecode):
		return http.StatusUnprocessableEntity, "decode_error"
	case errors.Is(err, preprocess.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity, "invalid_image"
	case errors.Is(err, inference.ErrShapeMismatch), errors.Is(err, inference.ErrInference):
		return http.StatusInternalServerError, "inference_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
