package smoke

import (
	"time"

	"github.com/okian/skincheck/internal/domain/model"
)

// Config holds the settings of one smoke run against a live service.
type Config struct {
	BaseURL      string        // Base URL of the service
	Images       int           // Number of generated samples when ImageDir is empty
	ImageDir     string        // Directory of sample images to post instead of generated ones
	Size         int           // Edge of generated samples in pixels
	Seed         uint64        // Generator seed
	Workers      int           // Concurrent callers for /classify and /analyze
	Timeout      time.Duration // Per-request timeout
	ReadyTimeout time.Duration // Upper bound on waiting for the model or a settled result
	PollInterval time.Duration // Period of /status and /result polling
	OutputFile   string        // JSON report path
	Verbose      bool          // Log every request
}

// Sample is one encoded image posted to the service.
type Sample struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`

	data []byte
}

// Outcome is the answer of one synchronous classification.
type Outcome struct {
	Sample    string                     `json:"sample"`
	Status    int                        `json:"status"`
	Code      string                     `json:"code,omitempty"`
	Result    model.ClassificationResult `json:"result"`
	LatencyMs float64                    `json:"latency_ms"`
}

// Stats holds run statistics.
type Stats struct {
	SamplesPrepared int                        `json:"samples_prepared"`
	ClassifyOK      int                        `json:"classify_ok"`
	ClassifyFailed  int                        `json:"classify_failed"`
	Submitted       int                        `json:"submitted"`
	Accepted        int                        `json:"accepted"`
	Backpressured   int                        `json:"backpressured"`
	SubmitFailed    int                        `json:"submit_failed"`
	BurstMaxTicket  uint64                     `json:"burst_max_ticket"`
	LatestTicket    uint64                     `json:"latest_ticket"`
	FinalResult     model.ClassificationResult `json:"final_result"`
	StartTime       time.Time                  `json:"start_time"`
	EndTime         time.Time                  `json:"end_time"`
	Duration        time.Duration              `json:"duration_ns"`
}

// Report is everything a run observed; it is written to Config.OutputFile.
type Report struct {
	BaseURL  string    `json:"base_url"`
	Model    string    `json:"model"`
	Samples  []Sample  `json:"samples"`
	Outcomes []Outcome `json:"outcomes"`
	Stats    Stats     `json:"stats"`
}
