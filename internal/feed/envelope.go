package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

// Envelope is the JSON form of an event sent to feed subscribers.
type Envelope struct {
	ID       string              `json:"id"`
	Kind     string              `json:"kind"`
	Tag      string              `json:"tag"`
	Time     time.Time           `json:"time"`
	Message  *funpay.Message     `json:"message,omitempty"`
	Order    *funpay.Order       `json:"order,omitempty"`
	Previous *funpay.OrderStatus `json:"previous_status,omitempty"`
}

// NewEnvelope converts an event into its wire form.
func NewEnvelope(ev runner.Event) (*Envelope, error) {
	env := &Envelope{
		ID:   ev.ID(),
		Kind: ev.Kind().String(),
		Tag:  ev.Tag(),
		Time: ev.Time().UTC(),
	}

	switch e := ev.(type) {
	case *runner.NewMessage:
		msg := e.Message
		env.Message = &msg
	case *runner.NewOrder:
		order := e.Order
		env.Order = &order
	case *runner.OrderStatusChanged:
		order := e.Order
		prev := e.Previous
		env.Order = &order
		env.Previous = &prev
	default:
		return nil, fmt.Errorf("unsupported event type %T", ev)
	}
	return env, nil
}

// Encode returns the JSON envelope for ev.
func Encode(ev runner.Event) ([]byte, error) {
	env, err := NewEnvelope(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
