package api

import (
	"errors"
	"net/http"

	"github.com/okian/skincheck/internal/domain/inference"
)

// LabelsHandler serves the model's class labels.
type LabelsHandler struct {
	deps Dependencies
}

// NewLabelsHandler creates a new labels handler.
func NewLabelsHandler(deps Dependencies) *LabelsHandler {
	return &LabelsHandler{deps: deps}
}

type labelsResponse struct {
	Labels []string `json:"labels"`
}

// HandleLabels handles GET /labels requests.
func (h *LabelsHandler) HandleLabels(w http.ResponseWriter, r *http.Request) {
	const op = "api.labels"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	labels, err := h.deps.Labels()
	if err != nil {
		if errors.Is(err, inference.ErrModelUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrNotReady, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, labelsResponse{Labels: labels})
}
