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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dentalchat-ai/platform/internal/admin"
	"github.com/dentalchat-ai/platform/internal/api/router"
	"github.com/dentalchat-ai/platform/internal/clients"
	"github.com/dentalchat-ai/platform/internal/clinical"
	appconfig "github.com/dentalchat-ai/platform/internal/config"
	"github.com/dentalchat-ai/platform/internal/conversation"
	"github.com/dentalchat-ai/platform/internal/delivery"
	"github.com/dentalchat-ai/platform/internal/knowledge"
	"github.com/dentalchat-ai/platform/internal/observability/metrics"
	"github.com/dentalchat-ai/platform/internal/profiles"
	"github.com/dentalchat-ai/platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dentalchat API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	conversationMetrics := metrics.NewConversationMetrics(registry)
	deliveryMetrics := metrics.NewDeliveryMetrics(registry)

	clientStore := clients.NewStore(pool)
	profileStore := profiles.NewStore(pool)
	conversationStore := conversation.NewPostgresStore(pool)
	auditStore := delivery.NewAuditStore(pool)

	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	retriever := buildRetriever(cfg, openaiClient, logger)

	pipeline := delivery.NewPipeline(conversationStore, clientStore, auditStore, logger,
		delivery.WithHTTPClient(&http.Client{Timeout: cfg.WebhookTimeout}),
		delivery.WithMetrics(deliveryMetrics),
	)

	generator := conversation.NewOpenAIGenerator(openaiClient, cfg.OpenAIModel, logger)
	engine := conversation.NewEngine(conversationStore, retriever, generator, pipeline, logger,
		conversation.WithHistoryWindow(cfg.HistoryWindow),
		conversation.WithMetrics(conversationMetrics),
	)

	clinicalGenerator := clinical.NewOpenAIGenerator(openaiClient, cfg.OpenAIModel, logger)
	advisor := clinical.NewAdvisor(profileStore, retriever, clinicalGenerator, conversationStore, logger)

	r := router.New(&router.Config{
		Logger:           logger,
		ChatHandler:      conversation.NewHandler(engine, logger),
		ClinicalHandler:  clinical.NewHandler(advisor, profileStore, logger),
		AdminHandler:     admin.NewHandler(conversationStore, auditStore, profileStore, logger),
		DashboardHandler: admin.NewDashboardHandler(admin.NewDashboardRepository(pool), registry, logger),
		TokenResolver:    clientStore,
		AdminAuthSecret:  cfg.AdminJWTSecret,
		MetricsHandler:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := pipeline.Close(shutdownCtx); err != nil {
		logger.Error("delivery pipeline drain incomplete", "error", err)
	}

	logger.Info("server stopped")
}

// buildRetriever assembles the knowledge retriever from configuration.
// Pinecone-backed when an index is configured, with an optional Redis
// read-through cache. Returns nil when retrieval is not configured; the
// engine treats that as "no context".
func buildRetriever(cfg *appconfig.Config, openaiClient *openai.Client, logger *logging.Logger) conversation.ContextRetriever {
	if cfg.PineconeAPIKey == "" || cfg.PineconeIndexHost == "" {
		logger.Warn("pinecone not configured, knowledge retrieval disabled")
		return nil
	}

	embedder := knowledge.NewEmbedder(openaiClient, cfg.OpenAIEmbeddingModel)
	index, err := knowledge.NewPineconeClient(cfg.PineconeAPIKey, cfg.PineconeIndexHost, nil)
	if err != nil {
		logger.Error("failed to create pinecone client, knowledge retrieval disabled", "error", err)
		return nil
	}
	var retriever knowledge.Retriever = knowledge.NewPineconeRetriever(embedder, index, cfg.RetrievalTopK, logger)

	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		retriever = knowledge.NewCachedRetriever(retriever, redis.NewClient(opts), cfg.ContextCacheTTL, logger)
	}
	return retriever
}
