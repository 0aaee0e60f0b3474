package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/appointly/assistant/internal/api/router"
	"github.com/appointly/assistant/internal/appointments"
	"github.com/appointly/assistant/internal/assistant"
	appconfig "github.com/appointly/assistant/internal/config"
	"github.com/appointly/assistant/internal/http/handlers"
	"github.com/appointly/assistant/internal/memory"
	"github.com/appointly/assistant/internal/observability/metrics"
	"github.com/appointly/assistant/pkg/logging"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting appointment assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Persistence: Postgres when configured, in-memory otherwise.
	var store assistant.AppointmentStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = appointments.NewPostgresRepository(pool)
		logger.Info("using postgres appointment store")
	} else {
		store = appointments.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory appointment store")
	}

	// Session memory: Redis when configured, in-memory otherwise.
	var mem memory.Store
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		defer client.Close()
		mem = memory.NewRedisStore(client, nil, cfg.SessionTTL)
		logger.Info("using redis session memory", "ttl", cfg.SessionTTL)
	} else {
		mem = memory.NewInMemoryStore()
		logger.Warn("REDIS_ADDR not set, using in-memory session memory")
	}

	m := metrics.NewAssistantMetrics(nil)

	// The LLM boundary is optional: without a key, extraction stops at the
	// deterministic layers and knowledge questions get apologies.
	var llm assistant.ChatCompleter
	if cfg.GroqAPIKey != "" {
		llm = assistant.NewGroqClient(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
		logger.Info("ai features enabled", "model", cfg.GroqModel)
	} else {
		logger.Warn("GROQ_API_KEY not set, ai features disabled")
	}

	var aiExtractor assistant.Extractor
	if llm != nil {
		ai := assistant.NewAIExtractor(llm, cfg.AIExtractionTimeout, logger)
		ai.Metrics = m
		aiExtractor = ai
	}
	extractor := assistant.NewFallbackChain(assistant.NewPatternExtractor(), aiExtractor)

	dialog := assistant.NewDialog(store, logger)
	dialog.Metrics = m
	knowledge := assistant.NewKnowledgeEngine(llm, mem, cfg.KnowledgeTimeout, logger)
	svc := assistant.NewService(dialog, extractor, knowledge, llm, mem, m, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        handlers.NewChatHandler(svc, logger),
		WSHandler:          handlers.NewWSHandler(svc, logger),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRatePerSecond:  cfg.ChatRatePerSecond,
		ChatRateBurst:      cfg.ChatRateBurst,
		ChatRateIdleTTL:    cfg.ChatRateIdleTTL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
