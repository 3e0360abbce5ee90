package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/config"
	"github.com/dgnsrekt/funpay-runner/internal/funpay"
	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

// Notifier is the interface for sending event notifications.
type Notifier interface {
	NotifyEvent(ctx context.Context, ev runner.Event) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	cfg        config.NotifyConfig
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg config.NotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// NotifyEvent sends a notification describing ev. Chat messages are only
// sent when Messages is enabled.
func (c *Client) NotifyEvent(ctx context.Context, ev runner.Event) error {
	if !c.cfg.Enabled {
		return nil
	}

	switch e := ev.(type) {
	case *runner.NewOrder:
		title := fmt.Sprintf("New order #%s", e.Order.ID)
		return c.send(ctx, title, FormatOrderMessage(e.Order), c.cfg.Tags+",moneybag", c.cfg.Priority)

	case *runner.OrderStatusChanged:
		title := fmt.Sprintf("Order #%s: %s", e.Order.ID, e.Order.Status)
		priority := c.cfg.Priority
		tags := c.cfg.Tags + ",white_check_mark"
		if e.Order.Status == funpay.OrderRefund {
			priority = "high" // Refunds need attention
			tags = c.cfg.Tags + ",x"
		}
		return c.send(ctx, title, FormatStatusMessage(e), tags, priority)

	case *runner.NewMessage:
		if !c.cfg.Messages {
			return nil
		}
		title := fmt.Sprintf("Message from %s", e.Message.ChatWith)
		return c.send(ctx, title, FormatChatMessage(e.Message), c.cfg.Tags+",speech_balloon", "low")
	}
	return nil
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.cfg.Server, "/"), c.cfg.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// NotifyEvent is a no-op.
func (n *NoopNotifier) NotifyEvent(_ context.Context, _ runner.Event) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg config.NotifyConfig, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
