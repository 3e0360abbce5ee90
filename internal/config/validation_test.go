package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Account: AccountConfig{
			GoldenKey:     "key",
			UserAgent:     "agent",
			BaseURL:       "https://funpay.com",
			TimeoutSec:    10,
			RatePerSecond: 2,
		},
		Runner: RunnerConfig{
			IntervalSec:       6,
			OrderRetryCount:   3,
			OrderRetryDelayMs: 1000,
		},
		Server:  ServerConfig{Enabled: true, Addr: ":9090"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error for valid config, got: %v", err)
	}
}

func TestValidate_RetryDelayMustBePositive(t *testing.T) {
	for _, delay := range []int{0, -5} {
		cfg := validConfig()
		cfg.Runner.OrderRetryDelayMs = delay
		err := cfg.Validate()
		if err == nil {
			t.Errorf("expected error for retry delay %d", delay)
			continue
		}
		if !strings.Contains(err.Error(), "runner.order_retry_delay_ms") {
			t.Errorf("expected error to name runner.order_retry_delay_ms, got: %v", err)
		}
	}
}

func TestValidate_Notify(t *testing.T) {
	cfg := validConfig()
	cfg.Notify = NotifyConfig{Enabled: false, Priority: "loud"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled notifications should not be validated: %v", err)
	}

	cfg.Notify = NotifyConfig{Enabled: true, Server: "https://ntfy.sh", Priority: "default"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "notify.topic") {
		t.Errorf("expected missing topic error, got: %v", err)
	}

	cfg.Notify = NotifyConfig{Enabled: true, Server: "https://ntfy.sh", Topic: "sales", Priority: "loud"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "notify.priority") {
		t.Errorf("expected invalid priority error, got: %v", err)
	}

	cfg.Notify = NotifyConfig{Enabled: true, Server: "https://ntfy.sh", Topic: "sales", Priority: "high"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid notify config, got: %v", err)
	}
}

func TestValidate_ReplyTokenNeedsServer(t *testing.T) {
	cfg := validConfig()
	cfg.Server = ServerConfig{Enabled: false, ReplyToken: "secret"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for reply token without server")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Account.GoldenKey = ""
	cfg.Account.BaseURL = "funpay.com"
	cfg.Runner.IntervalSec = 0
	cfg.Runner.OrderRetryCount = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.Fields) != 5 {
		t.Errorf("expected 5 field errors, got %d: %v", len(verrs.Fields), verrs.Fields)
	}

	msg := err.Error()
	for _, key := range []string{"account.golden_key", "account.base_url", "runner.interval_sec", "runner.order_retry_count", "logging.level"} {
		if !strings.Contains(msg, key) {
			t.Errorf("expected error message to mention %s", key)
		}
	}
}

func TestValidate_ServerAddrRequiredWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty server.addr")
	}

	cfg.Server.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error with server disabled, got: %v", err)
	}
}
