package funpay

import (
	"fmt"
	"strings"
)

// OrderStatus is the lifecycle state of a sale as shown in the trade list.
type OrderStatus int

const (
	OrderOutstanding OrderStatus = iota
	OrderCompleted
	OrderRefund
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOutstanding:
		return "outstanding"
	case OrderCompleted:
		return "completed"
	case OrderRefund:
		return "refund"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "outstanding":
		*s = OrderOutstanding
	case "completed":
		*s = OrderCompleted
	case "refund":
		*s = OrderRefund
	default:
		return fmt.Errorf("unknown order status %q", string(text))
	}
	return nil
}

// ChatSummary is one entry of the chat bookmark list: the chat and a short
// preview of its latest message.
type ChatSummary struct {
	ChatID      int64
	PreviewText string
	ChatWith    string
	Unread      bool
}

// Message is a chat message as far as the bookmark preview reveals it.
type Message struct {
	ChatID   int64  `json:"chat_id"`
	Text     string `json:"text"`
	ChatWith string `json:"chat_with,omitempty"`
	Unread   bool   `json:"unread"`
}

// Order is a single sale from the seller's trade list.
type Order struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Price         float64     `json:"price"`
	BuyerUsername string      `json:"buyer_username"`
	BuyerID       int64       `json:"buyer_id"`
	Status        OrderStatus `json:"status"`
	HTML          string      `json:"-"`
}

// OrderFilter selects which order states ListOrders returns.
type OrderFilter struct {
	Outstanding bool
	Refund      bool
	Completed   bool
}

// AllOrders matches every order state.
var AllOrders = OrderFilter{Outstanding: true, Refund: true, Completed: true}

func (f OrderFilter) Match(status OrderStatus) bool {
	switch status {
	case OrderOutstanding:
		return f.Outstanding
	case OrderRefund:
		return f.Refund
	case OrderCompleted:
		return f.Completed
	}
	return false
}

// PollResponse is the decoded reply to one combined runner request. Only
// the orders sub-query's tag is kept; its counter payload is not read.
type PollResponse struct {
	ChatTag  string
	OrderTag string
	// ChatChanged is false when the server sent no bookmark markup for
	// this cycle; ChatHTML is empty then.
	ChatChanged bool
	ChatHTML    string
}
