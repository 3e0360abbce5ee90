package runner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
)

// Kind tags the concrete type behind an Event.
type Kind int

const (
	KindNewMessage Kind = iota + 1
	KindNewOrder
	KindOrderStatusChanged
)

func (k Kind) String() string {
	switch k {
	case KindNewMessage:
		return "new_message"
	case KindNewOrder:
		return "new_order"
	case KindOrderStatusChanged:
		return "order_status_changed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one detected change. The set of implementations is closed:
// *NewMessage, *NewOrder and *OrderStatusChanged.
type Event interface {
	Kind() Kind
	// ID is unique per event and lets consumers deduplicate deliveries.
	ID() string
	// Tag is the continuation token of the sub-query that produced the event.
	Tag() string
	Time() time.Time

	isEvent()
}

type header struct {
	id  string
	tag string
	at  time.Time
}

func newHeader(tag string, at time.Time) header {
	return header{id: uuid.NewString(), tag: tag, at: at}
}

func (h header) ID() string      { return h.id }
func (h header) Tag() string     { return h.tag }
func (h header) Time() time.Time { return h.at }
func (header) isEvent()          {}

// NewMessage reports a chat whose latest message preview changed.
type NewMessage struct {
	header
	Message funpay.Message
}

func (*NewMessage) Kind() Kind { return KindNewMessage }

// NewOrder reports an order seen for the first time.
type NewOrder struct {
	header
	Order funpay.Order
}

func (*NewOrder) Kind() Kind { return KindNewOrder }

// OrderStatusChanged reports a known order whose status differs from the
// last observation.
type OrderStatusChanged struct {
	header
	Order    funpay.Order
	Previous funpay.OrderStatus
}

func (*OrderStatusChanged) Kind() Kind { return KindOrderStatusChanged }

// NewMessageEvent builds a NewMessage stamped with tag and at.
func NewMessageEvent(msg funpay.Message, tag string, at time.Time) *NewMessage {
	return &NewMessage{header: newHeader(tag, at), Message: msg}
}

// NewOrderEvent builds a NewOrder stamped with tag and at.
func NewOrderEvent(order funpay.Order, tag string, at time.Time) *NewOrder {
	return &NewOrder{header: newHeader(tag, at), Order: order}
}

// OrderStatusChangedEvent builds an OrderStatusChanged stamped with tag and at.
func OrderStatusChangedEvent(order funpay.Order, previous funpay.OrderStatus, tag string, at time.Time) *OrderStatusChanged {
	return &OrderStatusChanged{header: newHeader(tag, at), Order: order, Previous: previous}
}
