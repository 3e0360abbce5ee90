package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Account AccountConfig `mapstructure:"account"`
	Runner  RunnerConfig  `mapstructure:"runner"`
	Server  ServerConfig  `mapstructure:"server"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type AccountConfig struct {
	GoldenKey     string `mapstructure:"golden_key"`
	UserAgent     string `mapstructure:"user_agent"`
	BaseURL       string `mapstructure:"base_url"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	RatePerSecond int    `mapstructure:"rate_per_second"`
}

type RunnerConfig struct {
	IntervalSec       int  `mapstructure:"interval_sec"`
	OrderRetryCount   int  `mapstructure:"order_retry_count"`
	OrderRetryDelayMs int  `mapstructure:"order_retry_delay_ms"`
	PropagateFailures bool `mapstructure:"propagate_failures"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	// ReplyToken guards POST /chats/{chatID}/messages. Empty disables the route.
	ReplyToken string `mapstructure:"reply_token"`
}

// NotifyConfig configures ntfy push notifications.
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Server   string `mapstructure:"server"`
	Topic    string `mapstructure:"topic"`
	Priority string `mapstructure:"priority"` // min, low, default, high, urgent
	Tags     string `mapstructure:"tags"`     // comma-separated emoji tags
	Token    string `mapstructure:"token"`
	Messages bool   `mapstructure:"messages"` // also notify about chat messages
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func (a AccountConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSec) * time.Second
}

func (r RunnerConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSec) * time.Second
}

func (r RunnerConfig) OrderRetryDelay() time.Duration {
	return time.Duration(r.OrderRetryDelayMs) * time.Millisecond
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("account.user_agent", defaultUserAgent)
	v.SetDefault("account.base_url", "https://funpay.com")
	v.SetDefault("account.timeout_sec", 10)
	v.SetDefault("account.rate_per_second", 2)
	v.SetDefault("runner.interval_sec", 6)
	v.SetDefault("runner.order_retry_count", 3)
	v.SetDefault("runner.order_retry_delay_ms", 1000)
	v.SetDefault("runner.propagate_failures", false)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":9090")
	v.SetDefault("server.reply_token", "")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.topic", "")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("notify.tags", "shopping_cart")
	v.SetDefault("notify.token", "")
	v.SetDefault("notify.messages", false)
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("FUNPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind nested keys to env vars
	_ = v.BindEnv("account.golden_key", "FUNPAY_GOLDEN_KEY")
	for _, key := range []string{"enabled", "server", "topic", "priority", "tags", "token", "messages"} {
		_ = v.BindEnv("notify."+key, "NTFY_"+strings.ToUpper(key))
	}

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
