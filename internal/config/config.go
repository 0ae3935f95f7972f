package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                  int    `env:"PORT" envDefault:"8080"`
	DatabaseURL           string `env:"DATABASE_URL,required"`
	RedisURL              string `env:"REDIS_URL,required"`
	BridgeURL             string `env:"BRIDGE_URL,required"`
	EncryptionKey         string `env:"ENCRYPTION_KEY"`
	OutboxIntervalSeconds int    `env:"OUTBOX_INTERVAL_SECONDS" envDefault:"5"`
	SettleSeconds         int    `env:"SETTLE_SECONDS" envDefault:"5"`
	InitRetrySeconds      int    `env:"INIT_RETRY_SECONDS" envDefault:"10"`
	TypingMinMillis       int    `env:"TYPING_MIN_MS" envDefault:"1000"`
	TypingMaxMillis       int    `env:"TYPING_MAX_MS" envDefault:"4000"`
	PairingRetryCeiling   int    `env:"PAIRING_RETRY_CEILING" envDefault:"4"`
	RateLimitPerMin       int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	HSTSEnabled           bool   `env:"HSTS_ENABLED" envDefault:"false"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) OutboxInterval() time.Duration {
	return time.Duration(c.OutboxIntervalSeconds) * time.Second
}

func (c *Config) SettleInterval() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

func (c *Config) InitRetryInterval() time.Duration {
	return time.Duration(c.InitRetrySeconds) * time.Second
}

func (c *Config) TypingMin() time.Duration {
	return time.Duration(c.TypingMinMillis) * time.Millisecond
}

func (c *Config) TypingMax() time.Duration {
	return time.Duration(c.TypingMaxMillis) * time.Millisecond
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if c.OutboxIntervalSeconds <= 0 {
		return fmt.Errorf("OUTBOX_INTERVAL_SECONDS must be positive")
	}
	if c.SettleSeconds <= 0 {
		return fmt.Errorf("SETTLE_SECONDS must be positive")
	}
	if c.InitRetrySeconds <= 0 {
		return fmt.Errorf("INIT_RETRY_SECONDS must be positive")
	}
	if c.TypingMinMillis < 0 || c.TypingMaxMillis < c.TypingMinMillis {
		return fmt.Errorf("TYPING_MIN_MS must be >= 0 and <= TYPING_MAX_MS")
	}
	if c.PairingRetryCeiling <= 0 {
		return fmt.Errorf("PAIRING_RETRY_CEILING must be positive")
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must not be negative")
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 64 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
	}
	if c.EncryptionKey == "" {
		log.Warn().Msg("ENCRYPTION_KEY is empty: pairing payloads will be stored in plain text")
	}
	if strings.HasPrefix(c.RedisURL, "redis://") && !strings.Contains(c.RedisURL, "localhost") {
		log.Warn().Msg("REDIS_URL uses redis:// (not TLS): consider using rediss://")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
