package smoke

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
)

// classifyAll posts every sample to /classify with a worker pool and returns
// the outcomes in sample order.
func classifyAll(ctx context.Context, cfg *Config, client *HTTPClient, samples []Sample, stats *Stats) []Outcome {
	log := logger.Named("smoke")
	log.Info(ctx, "classifying samples", logger.Int("samples", len(samples)), logger.Int("workers", cfg.Workers))

	outcomes := make([]Outcome, len(samples))
	var ok, failed, done int64

	stop := startProgress(ctx, cfg, "classify", len(samples), &done)
	defer stop()

	indexChan := make(chan int, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				o := classifyOne(ctx, client, samples[index])
				outcomes[index] = o
				atomic.AddInt64(&done, 1)
				if o.Status == http.StatusOK {
					atomic.AddInt64(&ok, 1)
				} else {
					atomic.AddInt64(&failed, 1)
				}
				if cfg.Verbose {
					log.Debug(ctx, "classified",
						logger.String("sample", o.Sample),
						logger.Int("status", o.Status),
						logger.String("label", o.Result.Label),
						logger.Float64("confidence", o.Result.ConfidencePercent),
						logger.Float64("latency_ms", o.LatencyMs))
				}
			}
		}()
	}

	feed(ctx, indexChan, len(samples))
	wg.Wait()

	stats.ClassifyOK = int(atomic.LoadInt64(&ok))
	stats.ClassifyFailed = int(atomic.LoadInt64(&failed))
	log.Info(ctx, "classification completed",
		logger.Int("ok", stats.ClassifyOK),
		logger.Int("failed", stats.ClassifyFailed))
	return outcomes
}

func classifyOne(ctx context.Context, client *HTTPClient, s Sample) Outcome {
	start := time.Now()
	status, body, err := client.postImage(ctx, "/classify", s)
	o := Outcome{Sample: s.Name, Status: status, LatencyMs: float64(time.Since(start).Microseconds()) / 1000}
	if err != nil {
		o.Status = 0
		o.Code = "transport"
		return o
	}
	res, code, err := decodeOutcome(status, body)
	if err != nil {
		o.Code = "malformed"
		return o
	}
	o.Result = res
	o.Code = code
	return o
}

// submitBurst posts samples to /analyze concurrently and returns the highest
// ticket the service handed out.
func submitBurst(ctx context.Context, cfg *Config, client *HTTPClient, samples []Sample, stats *Stats) uint64 {
	log := logger.Named("smoke")
	log.Info(ctx, "submitting analysis burst", logger.Int("samples", len(samples)))

	var (
		accepted, backpressured, failed, done int64
		maxTicket                              atomic.Uint64
	)

	stop := startProgress(ctx, cfg, "analyze", len(samples), &done)
	defer stop()

	indexChan := make(chan int, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indexChan {
				acc, status, err := submitOne(ctx, client, samples[index])
				atomic.AddInt64(&done, 1)
				switch {
				case err == nil:
					atomic.AddInt64(&accepted, 1)
					raiseTo(&maxTicket, acc.Ticket)
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&backpressured, 1)
				default:
					atomic.AddInt64(&failed, 1)
					if cfg.Verbose {
						log.Debug(ctx, "submit failed", logger.String("sample", samples[index].Name), logger.Error(err))
					}
				}
			}
		}()
	}

	feed(ctx, indexChan, len(samples))
	wg.Wait()

	stats.Submitted += len(samples)
	stats.Accepted += int(atomic.LoadInt64(&accepted))
	stats.Backpressured += int(atomic.LoadInt64(&backpressured))
	stats.SubmitFailed += int(atomic.LoadInt64(&failed))
	stats.BurstMaxTicket = maxTicket.Load()
	log.Info(ctx, "burst completed",
		logger.Int("accepted", stats.Accepted),
		logger.Int("backpressured", stats.Backpressured),
		logger.Int("failed", stats.SubmitFailed),
		logger.Uint64("max_ticket", stats.BurstMaxTicket))
	return stats.BurstMaxTicket
}

// submitLatest posts the final sample, waiting out backpressure a bounded
// number of times.
func submitLatest(ctx context.Context, cfg *Config, client *HTTPClient, s Sample, stats *Stats) (types.Accepted, error) {
	var lastErr error
	for attempt := 1; attempt <= maxLatestAttempts; attempt++ {
		stats.Submitted++
		acc, status, err := submitOne(ctx, client, s)
		if err == nil {
			stats.Accepted++
			stats.LatestTicket = acc.Ticket
			return acc, nil
		}
		lastErr = err
		if status != http.StatusTooManyRequests {
			stats.SubmitFailed++
			return types.Accepted{}, err
		}
		stats.Backpressured++
		if err := sleep(ctx, cfg.PollInterval); err != nil {
			return types.Accepted{}, err
		}
	}
	return types.Accepted{}, fmt.Errorf("latest submission kept hitting backpressure: %w", lastErr)
}

func submitOne(ctx context.Context, client *HTTPClient, s Sample) (types.Accepted, int, error) {
	status, body, err := client.postImage(ctx, "/analyze", s)
	if err != nil {
		return types.Accepted{}, status, err
	}
	if status != http.StatusAccepted {
		return types.Accepted{}, status, fmt.Errorf("POST /analyze %s: status %d", s.Name, status)
	}
	var acc types.Accepted
	if err := json.Unmarshal(body, &acc); err != nil {
		return types.Accepted{}, status, fmt.Errorf("decode acceptance: %w", err)
	}
	return acc, status, nil
}

// feed sends 0..n-1 to ch and closes it, stopping early on cancellation.
func feed(ctx context.Context, ch chan<- int, n int) {
	defer close(ch)
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return
		case ch <- i:
		}
	}
}

func raiseTo(v *atomic.Uint64, ticket uint64) {
	for {
		cur := v.Load()
		if ticket <= cur || v.CompareAndSwap(cur, ticket) {
			return
		}
	}
}

// startProgress logs completed/total once per progressInterval until the
// returned stop function runs.
func startProgress(ctx context.Context, cfg *Config, phase string, total int, done *int64) func() {
	if !cfg.Verbose {
		return func() {}
	}
	ticker := time.NewTicker(progressInterval)
	quit := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Named("smoke").Info(ctx, "progress",
					logger.String("phase", phase),
					logger.Int64("done", atomic.LoadInt64(done)),
					logger.Int("total", total))
			}
		}
	}()
	return func() { close(quit) }
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
