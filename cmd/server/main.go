package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Hoangbim/streamcast/internal/chat"
	"github.com/Hoangbim/streamcast/internal/config"
	"github.com/Hoangbim/streamcast/internal/domain"
	"github.com/Hoangbim/streamcast/internal/logging"
	"github.com/Hoangbim/streamcast/internal/redis"
	"github.com/Hoangbim/streamcast/internal/relay"
	"github.com/Hoangbim/streamcast/internal/retry"
	"github.com/Hoangbim/streamcast/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupHistory picks the chat history backend: redis when configured, an
// in-process store otherwise. The returned func releases the backend.
func setupHistory(cfg *config.Config) (domain.ChatHistory, func()) {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, chat history is in-memory only")
		return chat.NewMemoryHistory(cfg.ChatHistoryLimit), func() {}
	}

	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create redis client", "error", err)
		os.Exit(1)
	}

	// Redis often comes up after this service in compose environments.
	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := retry.Do(ctx, policy, func() error { return client.Ping(ctx) }); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}

	store := redis.NewHistoryStore(client.Underlying(), cfg.ChatHistoryLimit)
	return store, func() { _ = client.Close() }
}

func runGracefulShutdown(srv *server.Server, relays *relay.Manager, rooms *chat.Manager, closeHistory func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Drain HTTP first so no new viewers arrive while streams stop.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		relays.StopAll()
		rooms.StopAll()
		closeHistory()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	history, closeHistory := setupHistory(cfg)

	relays := relay.NewManager(cfg.UpstreamBaseURL, relay.NewDialer(), clock, cfg.RelayIdleEviction)
	rooms := chat.NewManager(history, cfg.ChatHistoryLimit, clock)

	srv := server.NewServer(cfg, relays, rooms, clock)

	done := runGracefulShutdown(srv, relays, rooms, closeHistory)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
