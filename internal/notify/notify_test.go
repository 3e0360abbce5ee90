package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/funpay-runner/internal/config"
	"github.com/dgnsrekt/funpay-runner/internal/funpay"
	"github.com/dgnsrekt/funpay-runner/internal/runner"
)

type captured struct {
	path, title, priority, tags, auth, body string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var got []captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, captured{
			path:     r.URL.Path,
			title:    r.Header.Get("Title"),
			priority: r.Header.Get("Priority"),
			tags:     r.Header.Get("Tags"),
			auth:     r.Header.Get("Authorization"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNotifyEvent_NewOrder(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)
	cfg := config.NotifyConfig{Enabled: true, Server: server.URL + "/", Topic: "sales", Priority: "default", Tags: "shop", Token: "tk"}
	client := NewClient(cfg, zap.NewNop())

	order := funpay.Order{ID: "A1", Title: "Steam key", BuyerUsername: "bob", Price: 9.5}
	if err := client.NotifyEvent(context.Background(), runner.NewOrderEvent(order, "t", time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*got))
	}
	req := (*got)[0]
	if req.path != "/sales" {
		t.Errorf("unexpected path %s", req.path)
	}
	if req.title != "New order #A1" {
		t.Errorf("unexpected title %q", req.title)
	}
	if req.auth != "Bearer tk" {
		t.Errorf("expected bearer token, got %q", req.auth)
	}
	if !strings.Contains(req.body, "Price: 9.50") || !strings.Contains(req.body, "Buyer: bob") {
		t.Errorf("unexpected body %q", req.body)
	}
}

func TestNotifyEvent_RefundIsHighPriority(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)
	cfg := config.NotifyConfig{Enabled: true, Server: server.URL, Topic: "sales", Priority: "default", Tags: "shop"}
	client := NewClient(cfg, zap.NewNop())

	order := funpay.Order{ID: "A1", Status: funpay.OrderRefund}
	ev := runner.OrderStatusChangedEvent(order, funpay.OrderOutstanding, "t", time.Now())
	if err := client.NotifyEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := (*got)[0]
	if req.priority != "high" {
		t.Errorf("expected high priority, got %q", req.priority)
	}
	if !strings.Contains(req.body, "outstanding -> refund") {
		t.Errorf("unexpected body %q", req.body)
	}
}

func TestNotifyEvent_MessagesOptIn(t *testing.T) {
	server, got := newCaptureServer(t, http.StatusOK)
	cfg := config.NotifyConfig{Enabled: true, Server: server.URL, Topic: "sales", Priority: "default", Tags: "shop"}
	client := NewClient(cfg, zap.NewNop())

	ev := runner.NewMessageEvent(funpay.Message{ChatID: 3, Text: "hello", ChatWith: "alice"}, "t", time.Now())
	if err := client.NotifyEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*got) != 0 {
		t.Fatalf("messages should be skipped unless enabled")
	}

	cfg.Messages = true
	client = NewClient(cfg, zap.NewNop())
	if err := client.NotifyEvent(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*got) != 1 || (*got)[0].title != "Message from alice" {
		t.Errorf("unexpected requests: %+v", *got)
	}
}

func TestNotifyEvent_ServerError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusInternalServerError)
	cfg := config.NotifyConfig{Enabled: true, Server: server.URL, Topic: "sales", Priority: "default"}
	client := NewClient(cfg, zap.NewNop())

	err := client.NotifyEvent(context.Background(), runner.NewOrderEvent(funpay.Order{ID: "X"}, "t", time.Now()))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestNew_Disabled(t *testing.T) {
	if _, ok := New(config.NotifyConfig{}, zap.NewNop()).(*NoopNotifier); !ok {
		t.Error("expected NoopNotifier when disabled")
	}
}
