package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
)

const (
	DefaultOrderRetryCount = 3
	DefaultOrderRetryDelay = time.Second
)

// ErrOrdersUnavailable marks a cycle whose order listing failed every
// attempt. The cycle itself still succeeds with its chat events.
var ErrOrdersUnavailable = errors.New("order list unavailable")

// Options tune a Runner. Zero values fall back to the defaults.
type Options struct {
	OrderRetryCount int
	OrderRetryDelay time.Duration
	// Extract turns bookmark markup into chat summaries.
	Extract func(html string) ([]funpay.ChatSummary, error)
	Now     func() time.Time
	// EmitBaseline reports the first observation of every chat and order
	// as events instead of recording it silently.
	EmitBaseline bool
}

// Runner polls the marketplace and turns state differences into events.
// A Runner is driven by one goroutine at a time; run one Runner per account.
type Runner struct {
	client funpay.Client
	store  *Store
	opts   Options
	logger *zap.Logger

	chatTag  string
	orderTag string

	// Each sub-stream stays silent until its first successful observation.
	chatsSeeded  bool
	ordersSeeded bool

	lastCycle atomic.Int64
}

func New(client funpay.Client, opts Options, logger *zap.Logger) *Runner {
	if opts.OrderRetryCount < 1 {
		opts.OrderRetryCount = DefaultOrderRetryCount
	}
	if opts.OrderRetryDelay <= 0 {
		opts.OrderRetryDelay = DefaultOrderRetryDelay
	}
	if opts.Extract == nil {
		opts.Extract = funpay.ExtractChatSummaries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		client:       client,
		store:        NewStore(),
		opts:         opts,
		logger:       logger,
		chatTag:      randomTag(),
		orderTag:     randomTag(),
		chatsSeeded:  opts.EmitBaseline,
		ordersSeeded: opts.EmitBaseline,
	}
}

// randomTag produces an initial continuation token; the server accepts any
// value on first contact.
func randomTag() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Store exposes the snapshot store, mainly for inspection.
func (r *Runner) Store() *Store {
	return r.store
}

// Tags returns the current chat and order continuation tokens.
func (r *Runner) Tags() (chatTag, orderTag string) {
	return r.chatTag, r.orderTag
}

// LastCycle returns when the last cycle finished without a fault, or the
// zero time.
func (r *Runner) LastCycle() time.Time {
	ns := r.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// UpdateSavedMessage records a message the account itself sent so the next
// poll does not report it as new.
// An empty ChatWith keeps the counterpart already on record.
func (r *Runner) UpdateSavedMessage(msg funpay.Message) {
	chatWith := msg.ChatWith
	if chatWith == "" {
		if snap, ok := r.store.Chat(msg.ChatID); ok {
			chatWith = snap.ChatWith
		}
	}
	r.store.PutChat(msg.ChatID, ChatSnapshot{LastText: msg.Text, ChatWith: chatWith})
}

// MessageSender posts chat messages from the account.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Reply sends text to chatID and records it, so the account's own message
// is not reported by the next cycle.
func (r *Runner) Reply(ctx context.Context, sender MessageSender, chatID int64, text string) error {
	if err := sender.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("replying to chat %d: %w", chatID, err)
	}
	r.UpdateSavedMessage(funpay.Message{ChatID: chatID, Text: text})
	return nil
}

// GetUpdates runs one poll cycle and returns its events: chat events first,
// then order events, each in the order the server listed them.
func (r *Runner) GetUpdates(ctx context.Context) ([]Event, error) {
	start := time.Now()
	events, err := r.cycle(ctx)
	cycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		cyclesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	cyclesTotal.WithLabelValues("ok").Inc()
	r.lastCycle.Store(r.opts.Now().UnixNano())
	for _, ev := range events {
		eventsTotal.WithLabelValues(ev.Kind().String()).Inc()
	}
	chats, orders := r.store.Len()
	snapshotEntries.WithLabelValues("chat").Set(float64(chats))
	snapshotEntries.WithLabelValues("order").Set(float64(orders))
	return events, nil
}

func (r *Runner) cycle(ctx context.Context) ([]Event, error) {
	if !r.client.IsAuthenticated() {
		return nil, funpay.ErrNotAuthorized
	}

	resp, err := r.client.Poll(ctx, r.chatTag, r.orderTag)
	if err != nil {
		return nil, fmt.Errorf("polling runner: %w", err)
	}

	var chats []funpay.ChatSummary
	if resp.ChatChanged {
		chats, err = r.opts.Extract(resp.ChatHTML)
		if err != nil {
			return nil, fmt.Errorf("extracting chats: %w", err)
		}
	}

	// Both tokens follow the response even when nothing changed.
	r.chatTag = resp.ChatTag
	r.orderTag = resp.OrderTag

	var events []Event
	if resp.ChatChanged {
		chatEvents := r.diffChats(chats)
		if r.chatsSeeded {
			events = append(events, chatEvents...)
		} else {
			suppressedEventsTotal.Add(float64(len(chatEvents)))
			r.chatsSeeded = true
		}
	}

	orders, err := r.listOrders(ctx)
	if err != nil {
		// Chat snapshots are already committed; their events leave with
		// this cycle even when the caller gave up.
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.logger.Info("order listing interrupted, order diff skipped",
				zap.Error(ctxErr),
				zap.Int("chatEvents", len(events)),
			)
			return events, nil
		}
		orderListExhausted.Inc()
		r.logger.Error("skipping order diff for this cycle",
			zap.Error(fmt.Errorf("%w: %v", ErrOrdersUnavailable, err)),
			zap.Int("chatEvents", len(events)),
		)
		return events, nil
	}

	orderEvents := r.diffOrders(orders)
	if r.ordersSeeded {
		events = append(events, orderEvents...)
	} else {
		suppressedEventsTotal.Add(float64(len(orderEvents)))
		r.ordersSeeded = true
	}

	r.logger.Debug("cycle complete",
		zap.String("chatTag", r.chatTag),
		zap.String("orderTag", r.orderTag),
		zap.Int("chats", len(chats)),
		zap.Int("orders", len(orders)),
		zap.Int("events", len(events)),
	)
	return events, nil
}

func (r *Runner) diffChats(chats []funpay.ChatSummary) []Event {
	var events []Event
	for _, chat := range chats {
		if snap, ok := r.store.Chat(chat.ChatID); ok && snap.LastText == Truncate(chat.PreviewText) {
			continue
		}

		r.store.PutChat(chat.ChatID, ChatSnapshot{LastText: chat.PreviewText, ChatWith: chat.ChatWith})
		events = append(events, NewMessageEvent(funpay.Message{
			ChatID:   chat.ChatID,
			Text:     chat.PreviewText,
			ChatWith: chat.ChatWith,
			Unread:   chat.Unread,
		}, r.chatTag, r.opts.Now()))
	}
	return events
}

func (r *Runner) diffOrders(orders []funpay.Order) []Event {
	var events []Event
	for _, order := range orders {
		snap, ok := r.store.Order(order.ID)
		switch {
		case !ok:
			events = append(events, NewOrderEvent(order, r.orderTag, r.opts.Now()))
		case snap.Status != order.Status:
			events = append(events, OrderStatusChangedEvent(order, snap.Status, r.orderTag, r.opts.Now()))
		default:
			continue
		}
		r.store.PutOrder(order.ID, OrderSnapshot{Status: order.Status})
	}
	return events
}

// listOrders lists all order states, retrying with a fixed delay.
func (r *Runner) listOrders(ctx context.Context) ([]funpay.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.OrderRetryCount; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.opts.OrderRetryDelay):
			}
		}

		orders, err := r.client.ListOrders(ctx, funpay.AllOrders)
		if err == nil {
			return orders, nil
		}
		lastErr = err

		r.logger.Warn("failed to list orders",
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.opts.OrderRetryCount),
			zap.Error(err),
		)
		if attempt < r.opts.OrderRetryCount {
			orderListRetries.Inc()
		}
	}
	return nil, fmt.Errorf("max attempts exceeded: %w", lastErr)
}
