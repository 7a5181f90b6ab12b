package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parleyhq/parley/db"
	"github.com/parleyhq/parley/internal/api"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/llm"
	"github.com/parleyhq/parley/internal/log"
	"github.com/parleyhq/parley/internal/store"
)

// runServe loads configuration, prepares the database, and runs the HTTP
// server until SIGINT or SIGTERM.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("starting parley", "version", AppVersion, "config", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := connectPool(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	completer, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:      cfg.GeminiAPIKey,
		ModelName:   cfg.ModelName,
		Temperature: cfg.Temperature,
		Timeout:     time.Duration(cfg.ProviderTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating completion provider: %w", err)
	}

	server := api.NewServer(api.Config{
		Addr:            cfg.HTTPAddr,
		CORSOrigins:     cfg.CORSOrigins,
		TrustProxy:      cfg.TrustProxy,
		RateBurst:       cfg.RateBurst,
		HistoryMessages: cfg.HistoryMessages,
	}, store.New(pool, logger), completer, pool, logger)

	return server.Run(ctx)
}

// connectPool creates the connection pool and verifies it with a bounded
// ping retry, doubling the delay between attempts. Databases brought up
// alongside the server (compose, CI) are often not ready on the first try.
func connectPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	delay := time.Second
	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectRetries; attempt++ {
		if lastErr = pool.Ping(ctx); lastErr == nil {
			return pool, nil
		}
		logger.Warn("database not ready",
			"attempt", attempt,
			"retries", cfg.ConnectRetries,
			"error", lastErr)

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}

	pool.Close()
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", cfg.ConnectRetries, lastErr)
}
