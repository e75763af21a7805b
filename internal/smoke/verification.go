package smoke

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/skincheck/internal/domain/inference"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/internal/domain/types"
	"github.com/okian/skincheck/pkg/logger"
)

// waitReady polls /status until the model is ready, logging every state
// transition. A failed load ends the wait at once.
func waitReady(ctx context.Context, cfg *Config, client *HTTPClient) (types.Status, error) {
	log := logger.Named("smoke")
	ctx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
	defer cancel()

	var (
		st   types.Status
		prev string
	)
	for {
		if _, err := client.getJSON(ctx, "/status", &st); err != nil {
			log.Warn(ctx, "status poll failed", logger.Error(err))
		} else {
			if st.State != prev {
				log.Info(ctx, "model state", logger.String("from", prev), logger.String("to", st.State),
					logger.String("format", st.Format), logger.Int("labels", st.Labels))
				prev = st.State
			}
			switch inference.Status(st.State) {
			case inference.StatusReady:
				return st, nil
			case inference.StatusFailed:
				return st, fmt.Errorf("%w: %s", ErrLoadFailed, st.Error)
			}
		}
		if err := sleep(ctx, cfg.PollInterval); err != nil {
			return st, fmt.Errorf("%w: last state %q after %s", ErrNotReady, prev, cfg.ReadyTimeout)
		}
	}
}

// awaitSettled polls /result until it leaves the analyzing state.
func awaitSettled(ctx context.Context, cfg *Config, client *HTTPClient) (model.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ReadyTimeout)
	defer cancel()

	start := time.Now()
	var res model.ClassificationResult
	for {
		if _, err := client.getJSON(ctx, "/result", &res); err == nil && res.State != model.StateAnalyzing {
			logger.Named("smoke").Info(ctx, "result settled",
				logger.String("state", string(res.State)),
				logger.Duration("waited", time.Since(start)))
			return res, nil
		}
		if err := sleep(ctx, cfg.PollInterval); err != nil {
			return res, fmt.Errorf("result still %q after %s: %w", res.State, cfg.ReadyTimeout, err)
		}
	}
}

// verifyLatest checks last-request-wins: the final submission must carry the
// newest ticket and the settled result must be its classification.
func verifyLatest(expected Outcome, stats *Stats, settled model.ClassificationResult) error {
	if stats.LatestTicket <= stats.BurstMaxTicket {
		return fmt.Errorf("%w: latest ticket %d, burst reached %d", ErrTicketOrder, stats.LatestTicket, stats.BurstMaxTicket)
	}
	want := expected.Result
	if settled.State != want.State || settled.Label != want.Label || settled.ConfidencePercent != want.ConfidencePercent {
		return fmt.Errorf("%w: got %s %q %.1f%%, want %s %q %.1f%% (sample %s)", ErrStaleResult,
			settled.State, settled.Label, settled.ConfidencePercent,
			want.State, want.Label, want.ConfidencePercent, expected.Sample)
	}
	return nil
}
