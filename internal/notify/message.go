package notify

import (
	"fmt"
	"strings"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

// maxPreview bounds the chat text copied into a notification body.
const maxPreview = 200

// FormatOrderMessage creates the body for a new order notification.
func FormatOrderMessage(order funpay.Order) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Order: #%s\n", order.ID))
	if order.Title != "" {
		sb.WriteString(fmt.Sprintf("Lot: %s\n", order.Title))
	}
	sb.WriteString(fmt.Sprintf("Buyer: %s\n", order.BuyerUsername))
	sb.WriteString(fmt.Sprintf("Price: %.2f\n", order.Price))
	sb.WriteString(fmt.Sprintf("Status: %s", order.Status))

	return sb.String()
}

// FormatStatusMessage creates the body for an order status change.
func FormatStatusMessage(ev *runner.OrderStatusChanged) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Order: #%s\n", ev.Order.ID))
	sb.WriteString(fmt.Sprintf("Status: %s -> %s\n", ev.Previous, ev.Order.Status))
	sb.WriteString(fmt.Sprintf("Buyer: %s", ev.Order.BuyerUsername))

	return sb.String()
}

// FormatChatMessage creates the body for a new chat message.
func FormatChatMessage(msg funpay.Message) string {
	text := msg.Text
	if runes := []rune(text); len(runes) > maxPreview {
		text = string(runes[:maxPreview]) + "..."
	}
	return fmt.Sprintf("From: %s\nChat: %d\n\n%s", msg.ChatWith, msg.ChatID, text)
}
