package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// FieldError describes one invalid configuration key.
type FieldError struct {
	Key    string
	Reason string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationErrors) add(key, reason string) {
	e.Fields = append(e.Fields, FieldError{Key: key, Reason: reason})
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Key, f.Reason))
	}
	return sb.String()
}

var validPriorities = map[string]bool{
	"min": true, "low": true, "default": true, "high": true, "urgent": true,
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Account.GoldenKey == "" {
		errs.add("account.golden_key", "required (set FUNPAY_GOLDEN_KEY env var)")
	}
	if c.Account.UserAgent == "" {
		errs.add("account.user_agent", "must not be empty")
	}
	if u, err := url.Parse(c.Account.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.add("account.base_url", fmt.Sprintf("%q is not an absolute URL", c.Account.BaseURL))
	}
	if c.Account.TimeoutSec < 1 {
		errs.add("account.timeout_sec", "must be >= 1")
	}
	if c.Account.RatePerSecond < 1 {
		errs.add("account.rate_per_second", "must be >= 1")
	}

	if c.Runner.IntervalSec < 1 {
		errs.add("runner.interval_sec", "must be >= 1")
	}
	if c.Runner.OrderRetryCount < 1 {
		errs.add("runner.order_retry_count", "must be >= 1")
	}
	if c.Runner.OrderRetryDelayMs < 1 {
		errs.add("runner.order_retry_delay_ms", "must be >= 1")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		errs.add("server.addr", "required when server.enabled is true")
	}

	if c.Server.ReplyToken != "" && !c.Server.Enabled {
		errs.add("server.reply_token", "requires server.enabled")
	}

	if c.Notify.Enabled {
		if c.Notify.Topic == "" {
			errs.add("notify.topic", "required when notifications are enabled (set NTFY_TOPIC)")
		}
		if !validPriorities[c.Notify.Priority] {
			errs.add("notify.priority", fmt.Sprintf("invalid priority %q (valid: min, low, default, high, urgent)", c.Notify.Priority))
		}
		if u, err := url.Parse(c.Notify.Server); err != nil || u.Scheme == "" || u.Host == "" {
			errs.add("notify.server", fmt.Sprintf("%q is not an absolute URL", c.Notify.Server))
		}
	}

	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			errs.add("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
