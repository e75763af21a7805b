// Command skincheck-smoke exercises a running skincheck service end to end.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/skincheck/internal/smoke"
)

// Default configuration constants.
const (
	defaultImages       = 32
	defaultWorkers      = 2 // multiplier for runtime.NumCPU()
	defaultTimeout      = 30 * time.Second
	defaultReadyTimeout = 2 * time.Minute
	defaultPoll         = 250 * time.Millisecond
	defaultRunTimeout   = 10 * time.Minute
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRoot().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	cfg := smoke.Config{}
	var (
		logFile  string
		jsonLogs bool
	)

	cmd := &cobra.Command{
		Use:   "skincheck-smoke",
		Short: "Smoke and load check for a running skincheck service",
		Long: `Waits for the model to load, classifies sample images through POST /classify,
floods POST /analyze and checks that GET /result settles on the newest submission.`,
		Example: `  skincheck-smoke --url http://localhost:9080
  skincheck-smoke --images 200 --workers 16 --verbose
  skincheck-smoke --dir ./testdata/lesions --output reports/run.json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closer, err := smoke.SetupLogging(cmd.OutOrStdout(), logFile, cfg.Verbose, jsonLogs)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()
			_, err = smoke.Run(ctx, &cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.IntVar(&cfg.Images, "images", defaultImages, "number of generated sample images")
	f.StringVar(&cfg.ImageDir, "dir", "", "directory of sample images to post instead of generated ones")
	f.IntVar(&cfg.Size, "size", 0, "edge of generated images in pixels (default 64)")
	f.Uint64Var(&cfg.Seed, "seed", 1, "generator seed")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "number of concurrent callers")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.DurationVar(&cfg.ReadyTimeout, "ready-timeout", defaultReadyTimeout, "how long to wait for the model or a settled result")
	f.DurationVar(&cfg.PollInterval, "poll", defaultPoll, "polling interval for /status and /result")
	f.StringVar(&cfg.OutputFile, "output", "", "report file (default: smoke_report_TIMESTAMP.json)")
	f.StringVar(&logFile, "log", "", "also append logs to this file")
	f.BoolVar(&cfg.Verbose, "verbose", false, "log every request")
	f.BoolVar(&jsonLogs, "log-json", false, "emit JSON log lines")
	return cmd
}
