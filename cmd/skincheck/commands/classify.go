package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify one image file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			svc, err := startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			if err := svc.Wait(ctx); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), svc.Status().Message)
				return fmt.Errorf("model not ready: %w", err)
			}

			res, classifyErr := svc.Classify(ctx, data)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			return classifyErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "bound on model load plus classification")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}
