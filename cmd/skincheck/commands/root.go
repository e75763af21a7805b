// Package commands implements the skincheck command line.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	service "github.com/okian/skincheck/internal/app"
	"github.com/okian/skincheck/internal/config"
	"github.com/okian/skincheck/pkg/logger"
)

var (
	configPath string
	logLevel   string
	logJSON    bool

	cfg *config.Config
)

// Execute runs the root command until it returns or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRoot().ExecuteContext(ctx)
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "skincheck",
		Short:        "On-device skin lesion image classifier",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = os.Getenv(config.FileEnv)
			}
			loaded, err := config.LoadFile(cmd.Context(), path)
			if err != nil {
				return err
			}
			cfg = loaded

			// Logs go to stderr so command output on stdout stays parseable.
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr()), logger.WithJSON(logJSON || cfg.LogJSON)); err != nil {
				return err
			}
			level := cfg.LogLevel
			if logLevel != "" {
				level = logLevel
			}
			if err := logger.SetLevelString(level); err != nil {
				logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
					logger.String("log_level", level), logger.Error(err))
				_ = logger.SetLevelString("info")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $"+config.FileEnv+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log_level)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON log lines")

	root.AddCommand(serveCmd(), classifyCmd(), labelsCmd())
	return root
}

// startService builds the service from the loaded config and starts the
// background model load.
func startService(ctx context.Context) (*service.Service, error) {
	opts := append(service.FromConfig(cfg), service.WithLogger(logger.Get()))
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
