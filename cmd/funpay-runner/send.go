package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send CHAT_ID TEXT...",
		Short: "Send a chat message from the account",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chat id %q: %w", args[0], err)
			}
			text := strings.Join(args[1:], " ")

			client, err := newAccountClient(ctx)
			if err != nil {
				return err
			}
			if err := client.SendMessage(ctx, chatID, text); err != nil {
				return err
			}

			logger.Info("message sent", zap.Int64("chatID", chatID))
			return nil
		},
	}
}
