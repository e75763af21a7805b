// Package smoke drives a running skincheck service end to end: it waits for
// the model, classifies a set of sample images, then floods /analyze and
// checks that /result settles on the newest submission.
package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/skincheck/pkg/logger"
)

// Run executes one smoke run and returns what it observed. The report is
// returned even when verification fails.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log := logger.Named("smoke")
	stats := Stats{StartTime: time.Now()}
	report := &Report{BaseURL: cfg.BaseURL}
	defer func() {
		stats.EndTime = time.Now()
		stats.Duration = stats.EndTime.Sub(stats.StartTime)
		report.Stats = stats
	}()

	log.Info(ctx, "starting smoke run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("images", cfg.Images),
		logger.String("imageDir", cfg.ImageDir),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
		logger.Duration("readyTimeout", cfg.ReadyTimeout))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: service answers at all
	if err := checkServiceHealth(ctx, client); err != nil {
		return report, err
	}

	// Step 2: model loading -> ready
	st, err := waitReady(ctx, cfg, client)
	report.Model = st.Format
	if err != nil {
		return report, err
	}

	// Step 3: samples
	var samples []Sample
	if cfg.ImageDir != "" {
		samples, err = loadSamples(ctx, cfg.ImageDir, &stats)
	} else {
		samples, err = generateSamples(ctx, cfg, &stats)
	}
	if err != nil {
		return report, fmt.Errorf("prepare samples: %w", err)
	}
	report.Samples = samples

	// Step 4: synchronous classification of every sample
	report.Outcomes = classifyAll(ctx, cfg, client, samples, &stats)
	last := len(samples) - 1
	expected := report.Outcomes[last]
	if expected.Status != http.StatusOK {
		return report, fmt.Errorf("classify %s: status %d (%s)", expected.Sample, expected.Status, expected.Code)
	}

	// Step 5: burst, then the submission that must win
	submitBurst(ctx, cfg, client, samples[:last], &stats)
	if _, err := submitLatest(ctx, cfg, client, samples[last], &stats); err != nil {
		return report, fmt.Errorf("submit latest: %w", err)
	}

	// Step 6: settle and verify
	settled, err := awaitSettled(ctx, cfg, client)
	if err != nil {
		return report, err
	}
	stats.FinalResult = settled
	if err := verifyLatest(expected, &stats, settled); err != nil {
		return report, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report.Stats = stats
	if err := saveReport(ctx, cfg.OutputFile, report); err != nil {
		log.Warn(ctx, "failed to save report", logger.Error(err))
	}
	displayFinalStats(ctx, &stats)

	log.Info(ctx, "smoke run passed")
	return report, nil
}

// checkServiceHealth asks /healthz for the JSON form and rejects anything but
// an "ok" 200.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	var h struct {
		Status string `json:"status"`
		Model  string `json:"model"`
	}
	status, err := client.getJSON(ctx, "/healthz", &h)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK || h.Status != "ok" {
		return fmt.Errorf("%w: status %d %q", ErrUnhealthy, status, h.Status)
	}
	logger.Named("smoke").Info(ctx, "service is healthy", logger.String("model", h.Model))
	return nil
}

// saveReport writes the report as indented JSON. An empty path selects a
// timestamped file in the working directory.
func saveReport(ctx context.Context, filename string, report *Report) error {
	if filename == "" {
		filename = "smoke_report_" + time.Now().Format("20060102_150405") + ".json"
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), reportFilePermission); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	logger.Named("smoke").Info(ctx, "report saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the run summary.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var okRate, requestsPerSecond float64
	if total := stats.ClassifyOK + stats.ClassifyFailed; total > 0 {
		okRate = float64(stats.ClassifyOK) / float64(total) * percentageMultiplier
	}
	if stats.Duration > 0 {
		requests := stats.ClassifyOK + stats.ClassifyFailed + stats.Submitted
		requestsPerSecond = float64(requests) / stats.Duration.Seconds()
	}

	logger.Named("smoke").Info(ctx, "final statistics",
		logger.Int("samples", stats.SamplesPrepared),
		logger.Int("classifyOK", stats.ClassifyOK),
		logger.Int("classifyFailed", stats.ClassifyFailed),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("backpressured", stats.Backpressured),
		logger.Int("submitFailed", stats.SubmitFailed),
		logger.Uint64("latestTicket", stats.LatestTicket),
		logger.String("finalLabel", stats.FinalResult.Label),
		logger.Duration("duration", stats.Duration),
		logger.Float64("classifyOKRate", okRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))
}
