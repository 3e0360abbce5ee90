package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/dispatch"
	"github.com/dgnsrekt/funpay-runner/internal/feed"
	"github.com/dgnsrekt/funpay-runner/internal/notify"
	"github.com/dgnsrekt/funpay-runner/internal/runner"
	"github.com/dgnsrekt/funpay-runner/internal/server"
)

// staleCycles is how many intervals without a completed cycle mark the
// runner unhealthy.
const staleCycles = 5

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Stream account events to notifications and the live feed",
		Long: `Poll the account continuously and dispatch every detected event.

Events are logged, sent to ntfy when NTFY_ENABLED=true, and pushed to
websocket subscribers on /ws when the ops server is enabled. With
server.reply_token set, POST /chats/{chatID}/messages replies from the
account without the reply being reported back as a new message.

Examples:
  # Run with the default config search path
  funpay-runner listen

  # Stop on the first failed cycle instead of retrying
  FUNPAY_RUNNER_PROPAGATE_FAILURES=true funpay-runner listen`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client, err := newAccountClient(ctx)
			if err != nil {
				return err
			}

			r := runner.New(client, runner.Options{
				OrderRetryCount: cfg.Runner.OrderRetryCount,
				OrderRetryDelay: cfg.Runner.OrderRetryDelay(),
			}, logger)

			stream, err := r.Listen(ctx, runner.ListenOptions{
				Interval:          cfg.Runner.Interval(),
				PropagateFailures: cfg.Runner.PropagateFailures,
			})
			if err != nil {
				return err
			}

			d := dispatch.New(logger)
			d.OnNewMessage(logMessage)
			d.OnNewOrder(logOrder)
			d.OnOrderStatusChanged(logStatusChange)
			d.OnEvent(notify.New(cfg.Notify, logger).NotifyEvent)

			serverDone := make(chan error, 1)
			if cfg.Server.Enabled {
				hub := feed.NewHub(logger)
				go hub.Run(ctx)
				d.OnEvent(hub.Publish)

				srv := server.NewServer(client, r, hub, staleCycles*cfg.Runner.Interval(), logger)
				if cfg.Server.ReplyToken != "" {
					srv.WithReplies(server.ReplyFunc(func(ctx context.Context, chatID int64, text string) error {
						return r.Reply(ctx, client, chatID, text)
					}), cfg.Server.ReplyToken)
				}
				go func() {
					serverDone <- server.Serve(ctx, cfg.Server.Addr, server.NewRouter(srv, logger), logger)
				}()
			} else {
				close(serverDone)
			}

			err = d.Run(ctx, stream)
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			cancel()

			if serr := <-serverDone; serr != nil {
				logger.Error("ops server error", zap.Error(serr))
			}
			return err
		},
	}
}

func logMessage(_ context.Context, ev *runner.NewMessage) error {
	logger.Info("new message",
		zap.Int64("chatID", ev.Message.ChatID),
		zap.String("from", ev.Message.ChatWith),
		zap.String("text", ev.Message.Text),
	)
	return nil
}

func logOrder(_ context.Context, ev *runner.NewOrder) error {
	logger.Info("new order",
		zap.String("orderID", ev.Order.ID),
		zap.String("buyer", ev.Order.BuyerUsername),
		zap.Float64("price", ev.Order.Price),
		zap.Stringer("status", ev.Order.Status),
	)
	return nil
}

func logStatusChange(_ context.Context, ev *runner.OrderStatusChanged) error {
	logger.Info("order status changed",
		zap.String("orderID", ev.Order.ID),
		zap.Stringer("from", ev.Previous),
		zap.Stringer("to", ev.Order.Status),
	)
	return nil
}
