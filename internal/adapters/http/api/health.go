package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/metrics"
)

// HealthHandler serves Prometheus metrics, or a JSON readiness summary when
// the client asks for JSON.
type HealthHandler struct {
	status  func() types.Status
	metrics http.Handler
}

// NewHealthHandler creates a health handler reading readiness from status.
func NewHealthHandler(status func() types.Status) *HealthHandler {
	return &HealthHandler{
		status:  status,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// HandleHealth handles GET /healthz. The process is healthy even while the
// model loads; a failed load reports 503 in the JSON form.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if !strings.Contains(r.Header.Get("Accept"), "application/json") {
		h.metrics.ServeHTTP(w, r)
		return
	}

	st := h.status()
	code, status := http.StatusOK, "ok"
	if st.State == string(inference.StatusFailed) {
		code, status = http.StatusServiceUnavailable, "degraded"
	}
	writeJSON(w, code, healthResponse{Status: status, Model: st.State})
}
