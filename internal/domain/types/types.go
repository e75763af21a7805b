// Package types contains the read shapes returned by the HTTP API.
package types

// Status describes model readiness.
type Status struct {
	State   string `json:"state"`
	Message string `json:"message"`
	Format  string `json:"format"`
	Labels  int    `json:"labels"`
	Error   string `json:"error,omitempty"`
}

// Advisory is the weather side panel: it never influences classification.
type Advisory struct {
	TemperatureC float64 `json:"temperature_2m"`
	UVIndex      float64 `json:"uv_index"`
	Advice       string  `json:"advice"`
	NeedsSPF     bool    `json:"needs_spf"`
}

// Accepted acknowledges an asynchronous analysis request.
type Accepted struct {
	JobID  string `json:"job_id"`
	Ticket uint64 `json:"ticket"`
	Status string `json:"status"`
}
