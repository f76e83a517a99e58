package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/atendeai/booking-engine/internal/api/router"
	"github.com/atendeai/booking-engine/internal/booking"
	appconfig "github.com/atendeai/booking-engine/internal/config"
	"github.com/atendeai/booking-engine/internal/conversation"
	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/events"
	"github.com/atendeai/booking-engine/internal/llm"
	"github.com/atendeai/booking-engine/internal/messaging"
	"github.com/atendeai/booking-engine/internal/observability/metrics"
	"github.com/atendeai/booking-engine/internal/pipeline"
	"github.com/atendeai/booking-engine/internal/webhook"
	"github.com/atendeai/booking-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, idempotency falls back to database checks", "error", err)
		} else {
			rdb = client
			defer client.Close()
		}
	}

	m := metrics.New(nil)

	dirStore := directory.NewPostgresStore(pool)
	convStore := conversation.NewPostgresStore(pool)

	// Missing LLM or gateway credentials are surfaced per request by the
	// webhook handler, not fatal at boot.
	var llmClient llm.Client
	openaiClient, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAITimeout, logger)
	if err != nil {
		logger.Warn("llm client not configured, webhook requests will be rejected", "error", err)
	} else {
		llmClient = openaiClient
	}

	var gateway messaging.Gateway
	httpGateway, err := messaging.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, logger)
	if err != nil {
		logger.Warn("messaging gateway not configured, webhook requests will be rejected", "error", err)
	} else {
		gateway = httpGateway
	}

	bus := events.NewMemoryBus(logger)

	resolver := conversation.NewResolver(convStore, logger)
	orchestrator := conversation.NewOrchestrator(llmClient, conversation.OrchestratorConfig{
		Model:         cfg.OpenAIModel,
		Persona:       cfg.AgentPersona,
		MaxTokens:     cfg.OpenAIMaxTokens,
		Temperature:   float32(cfg.OpenAITemperature),
		HistoryWindow: cfg.HistoryWindow,
		Timeout:       cfg.OpenAITimeout,
	}, logger, m)

	var primary conversation.Extractor
	if llmClient != nil {
		primary = conversation.NewLLMExtractor(llmClient, cfg.OpenAIModel, logger)
	}
	extractor := conversation.NewPipeline(primary, conversation.NewHeuristicExtractor(logger), logger)

	engine := booking.NewEngine(dirStore, rdb, bus, booking.EngineConfig{
		IdempotencyWindow: cfg.IdempotencyWindow,
		AllowConflicting:  cfg.AllowConflictingBookings,
	}, logger, m)

	proc := pipeline.New(dirStore, convStore, resolver, orchestrator, extractor, engine, gateway, llmClient, pipeline.Config{
		AvailabilityDays: cfg.AvailabilityDays,
		HistoryLimit:     cfg.HistoryWindow * 2,
	}, logger, m)

	webhookHandler := webhook.NewHandler(dirStore, proc, logger, m)
	viewerHandler := events.NewViewerHandler(bus, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookHandler: webhookHandler,
		ViewerHandler:  viewerHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
