package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	taxhub "github.com/ourstudio-se/taxhub-chat"
	"github.com/ourstudio-se/taxhub-chat/agent"
	"github.com/ourstudio-se/taxhub-chat/handoff"
	"github.com/ourstudio-se/taxhub-chat/history"
	"github.com/ourstudio-se/taxhub-chat/history/boltstore"
	"github.com/ourstudio-se/taxhub-chat/history/postgres"
	"github.com/ourstudio-se/taxhub-chat/relay"
)

func main() {
	ctx := context.Background()

	cfg, err := LoadConfig()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.InfoContext(ctx, "taxhub starting", "env", cfg.Env)

	if err := run(ctx, cfg, logger); err != nil {
		logger.ErrorContext(ctx, "taxhub stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agents, err := agent.LoadDir(cfg.AgentsDir)
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}
	logger.InfoContext(ctx, "agents loaded", "count", agents.Len(), "dir", cfg.AgentsDir)

	backend, closeBackend, err := openHistoryBackend(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer closeBackend()
	logger.InfoContext(ctx, "history backend ready", "backend", cfg.History.Backend)

	var redisClient *redis.Client
	if cfg.usesRedis() {
		opts, err := redis.ParseURL(cfg.Handoff.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		logger.InfoContext(ctx, "redis connected")
	}

	bus := handoff.NewBus(logger)
	var staging handoff.Staging = handoff.NewMemoryStaging(cfg.Handoff.TTL)
	if cfg.Handoff.Staging == "redis" {
		staging = handoff.NewRedisStaging(redisClient, "", cfg.Handoff.TTL)
	}
	if cfg.Handoff.Bridge {
		bridge := handoff.NewRedisBridge(bus, redisClient, cfg.Handoff.BridgeChan, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.ErrorContext(ctx, "hand-off bridge stopped", "error", err)
			}
		}()
	}

	app, err := taxhub.New(taxhub.Config{
		Agents:          agents,
		HistoryBackend:  backend,
		HistoryKey:      cfg.History.Key,
		SeedExamples:    cfg.SeedExamples,
		Orchestrator:    newOrchestrator(cfg.Orchestrator),
		Bus:             bus,
		Staging:         staging,
		Logger:          logger,
		RequestTimeout:  cfg.RequestTimeout,
		PromptRateLimit: cfg.RateLimit,
		PromptBurst:     cfg.RateBurst,
		AllowedOrigins:  cfg.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}

	page, err := app.Init(ctx)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	logger.InfoContext(ctx, "history loaded", "records", page.Stats.Total, "agents", page.Stats.Agents)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func openHistoryBackend(ctx context.Context, cfg HistoryConfig) (history.Backend, func(), error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		backend := postgres.New(pool, postgres.WithTableName(cfg.Table))
		if err := backend.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrating history table: %w", err)
		}
		return backend, pool.Close, nil
	case "memory":
		return history.NewMemoryBackend(), func() {}, nil
	default:
		backend, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { closeQuietly(backend) }, nil
	}
}

func newOrchestrator(cfg OrchestratorConfig) relay.Orchestrator {
	switch cfg.Provider {
	case "openai":
		return relay.NewOpenAIOrchestrator(relay.OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			SystemPrompt: cfg.SystemPrompt,
		})
	case "anthropic":
		return relay.NewAnthropicOrchestrator(relay.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: cfg.SystemPrompt,
		})
	case "http":
		return relay.NewHTTPOrchestrator(cfg.URL)
	default:
		return nil
	}
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
