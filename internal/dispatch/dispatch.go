// Package dispatch routes runner events to the handlers registered for
// their kind.
package dispatch

import (
	"context"
	"fmt"
	"iter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

var handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "funpay_dispatch_handler_failures_total",
	Help: "Handler invocations that returned an error or panicked",
}, []string{"kind"})

type (
	MessageHandler       func(ctx context.Context, ev *runner.NewMessage) error
	OrderHandler         func(ctx context.Context, ev *runner.NewOrder) error
	StatusChangedHandler func(ctx context.Context, ev *runner.OrderStatusChanged) error
	EventHandler         func(ctx context.Context, ev runner.Event) error
)

// Dispatcher calls handlers in registration order. A failing handler is
// logged and does not keep the remaining handlers from running.
type Dispatcher struct {
	logger    *zap.Logger
	onMessage []MessageHandler
	onOrder   []OrderHandler
	onStatus  []StatusChangedHandler
	onAny     []EventHandler
}

func New(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) OnNewMessage(h MessageHandler) { d.onMessage = append(d.onMessage, h) }

func (d *Dispatcher) OnNewOrder(h OrderHandler) { d.onOrder = append(d.onOrder, h) }

func (d *Dispatcher) OnOrderStatusChanged(h StatusChangedHandler) {
	d.onStatus = append(d.onStatus, h)
}

// OnEvent registers a handler that sees every event after the kind-specific
// handlers ran.
func (d *Dispatcher) OnEvent(h EventHandler) { d.onAny = append(d.onAny, h) }

// Dispatch runs the handlers for ev and returns how many of them failed.
func (d *Dispatcher) Dispatch(ctx context.Context, ev runner.Event) int {
	failed := 0

	switch e := ev.(type) {
	case *runner.NewMessage:
		for i, h := range d.onMessage {
			failed += d.call(ev, i, func() error { return h(ctx, e) })
		}
	case *runner.NewOrder:
		for i, h := range d.onOrder {
			failed += d.call(ev, i, func() error { return h(ctx, e) })
		}
	case *runner.OrderStatusChanged:
		for i, h := range d.onStatus {
			failed += d.call(ev, i, func() error { return h(ctx, e) })
		}
	default:
		d.logger.Error("unknown event type", zap.String("type", fmt.Sprintf("%T", ev)))
		return 0
	}

	for i, h := range d.onAny {
		failed += d.call(ev, i, func() error { return h(ctx, ev) })
	}
	return failed
}

// Run dispatches every event of the stream until it ends. A stream error
// is returned as is.
func (d *Dispatcher) Run(ctx context.Context, events iter.Seq2[runner.Event, error]) error {
	for ev, err := range events {
		if err != nil {
			return err
		}
		d.Dispatch(ctx, ev)
	}
	return ctx.Err()
}

func (d *Dispatcher) call(ev runner.Event, index int, fn func() error) (failed int) {
	defer func() {
		if rec := recover(); rec != nil {
			handlerFailures.WithLabelValues(ev.Kind().String()).Inc()
			d.logger.Error("handler panicked",
				zap.String("kind", ev.Kind().String()),
				zap.Int("handler", index),
				zap.Any("panic", rec),
			)
			failed = 1
		}
	}()

	if err := fn(); err != nil {
		handlerFailures.WithLabelValues(ev.Kind().String()).Inc()
		d.logger.Error("handler failed",
			zap.String("kind", ev.Kind().String()),
			zap.String("eventID", ev.ID()),
			zap.Int("handler", index),
			zap.Error(err),
		)
		return 1
	}
	return 0
}
