package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/feed"
	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

func pollCmd() *cobra.Command {
	var (
		raw  bool
		wait time.Duration
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run a single cycle and print its events as JSON lines",
		Long: `Record the current account state, wait, then run one more cycle and
print the events it produced, one JSON object per line.

With --raw a single cycle runs and everything it observes is printed,
including chats and orders that were already present.

Examples:
  # Print what changes during the next 30 seconds
  funpay-runner poll --wait 30s

  # Dump every chat and order currently visible
  funpay-runner poll --raw`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := newAccountClient(ctx)
			if err != nil {
				return err
			}

			r := runner.New(client, runner.Options{
				OrderRetryCount: cfg.Runner.OrderRetryCount,
				OrderRetryDelay: cfg.Runner.OrderRetryDelay(),
				EmitBaseline:    raw,
			}, logger)

			if !raw {
				if _, err := r.GetUpdates(ctx); err != nil {
					return fmt.Errorf("recording baseline: %w", err)
				}
				chats, orders := r.Store().Len()
				logger.Info("baseline recorded",
					zap.Int("chats", chats),
					zap.Int("orders", orders),
					zap.Duration("wait", wait),
				)

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}

			events, err := r.GetUpdates(ctx)
			if err != nil {
				return err
			}
			return writeEvents(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "report the first observation instead of diffing against a baseline")
	cmd.Flags().DurationVar(&wait, "wait", runner.DefaultInterval, "time between the baseline and the reported cycle")

	return cmd
}

func writeEvents(w io.Writer, events []runner.Event) error {
	for _, ev := range events {
		line, err := feed.Encode(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}
