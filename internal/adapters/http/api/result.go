package api

import "net/http"

// ResultHandler serves the current display state.
type ResultHandler struct {
	deps Dependencies
}

// NewResultHandler creates a new result handler.
func NewResultHandler(deps Dependencies) *ResultHandler {
	return &ResultHandler{deps: deps}
}

// HandleResult handles GET /result requests.
func (h *ResultHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Current())
}

// StatusHandler serves model readiness.
type StatusHandler struct {
	deps Dependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps Dependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Status())
}
