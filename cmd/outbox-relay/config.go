package main

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is the outbox-relay process configuration, bound from a config
// file (if present) and environment variables prefixed OUTBOX_RELAY_.
type Settings struct {
	DatabaseURL string `mapstructure:"database_url" validate:"required"`

	Table            string `mapstructure:"table"`
	IdempotencyTable string `mapstructure:"idempotency_table"`

	BatchSize         int           `mapstructure:"outbox_batch_size" validate:"gte=0"`
	LeaseSeconds      int           `mapstructure:"outbox_lease_seconds" validate:"gte=0"`
	PollInterval      time.Duration `mapstructure:"outbox_poll_interval_ms" validate:"gte=0"`
	MaxRetries        int           `mapstructure:"outbox_max_retries" validate:"gte=0"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gte=0"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval_ms" validate:"gte=0"`

	ReaperEnabled  bool          `mapstructure:"reaper_enabled"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval_ms" validate:"gte=0"`

	MaxBacklogSize  int    `mapstructure:"max_backlog_size" validate:"gte=0"`
	OnLimitExceeded string `mapstructure:"on_limit_exceeded" validate:"omitempty,oneof=throw warn drop"`

	RetryBackoffBase  time.Duration `mapstructure:"retry_backoff_base_ms" validate:"gte=0"`
	RetryBackoffMax   time.Duration `mapstructure:"retry_backoff_max_ms" validate:"gte=0"`
	RetryJitterFactor float64       `mapstructure:"retry_jitter_factor" validate:"gte=0"`

	// HTTPAddr serves /metrics (Prometheus) and /healthz.
	HTTPAddr string `mapstructure:"http_addr"`
}

func (s *Settings) validate() error {
	return validator.New().Struct(s)
}

func loadSettings(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("outbox-relay")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetDefault("outbox_batch_size", 50)
	v.SetDefault("outbox_lease_seconds", 30)
	v.SetDefault("outbox_poll_interval_ms", 500*time.Millisecond)
	v.SetDefault("outbox_max_retries", 5)
	v.SetDefault("concurrency", 1)
	v.SetDefault("reaper_enabled", true)
	v.SetDefault("reaper_interval_ms", 10*time.Second)
	v.SetDefault("on_limit_exceeded", "warn")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("OUTBOX_RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// AutomaticEnv only reaches keys viper already knows about, so bind the
	// keys that have no default explicitly for Unmarshal to see them.
	for _, key := range []string{
		"database_url", "table", "idempotency_table", "heartbeat_interval_ms", "max_backlog_size",
		"retry_backoff_base_ms", "retry_backoff_max_ms", "retry_jitter_factor", "http_addr",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, err
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}

	return settings, nil
}
