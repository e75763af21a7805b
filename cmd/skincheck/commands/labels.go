package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func labelsCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Print the model's class labels in output order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			svc, err := startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			if err := svc.Wait(ctx); err != nil {
				return fmt.Errorf("model not ready: %w", err)
			}
			labels, err := svc.Labels()
			if err != nil {
				return err
			}
			for i, l := range labels {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, l)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "bound on model load")
	return cmd
}
