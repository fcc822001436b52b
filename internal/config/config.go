package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv          string `env:"APP_ENV" default:"development"`
	Port            string `env:"PORT" default:"8080"`
	UpstreamBaseURL string `env:"UPSTREAM_BASE_URL" default:"ws://127.0.0.1:8188"`
	RedisURL        string `env:"REDIS_URL"`
	LogLevel        string `env:"LOG_LEVEL" default:"info"`
	LogFormat       string `env:"LOG_FORMAT" default:"text"`

	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`

	RelayIdleEviction time.Duration `env:"RELAY_IDLE_EVICTION" default:"60s"`
	ChatHistoryLimit  int           `env:"CHAT_HISTORY_LIMIT" default:"100"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.UpstreamBaseURL)
	if err != nil {
		return fmt.Errorf("UPSTREAM_BASE_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("UPSTREAM_BASE_URL must use ws or wss scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL must include a host")
	}

	if cfg.MaxWebSocketConnections <= 0 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be positive, got %d", cfg.MaxWebSocketConnections)
	}
	if cfg.RelayIdleEviction <= 0 {
		return fmt.Errorf("RELAY_IDLE_EVICTION must be positive, got %v", cfg.RelayIdleEviction)
	}
	if cfg.ChatHistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be positive, got %d", cfg.ChatHistoryLimit)
	}

	return nil
}
