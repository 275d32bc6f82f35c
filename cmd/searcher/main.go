// Command searcher holds the in-memory word indexes and answers positions
// lookups over HTTP.
//
// On start it rebuilds an index for every stored document, then follows the
// ingest topic to index new documents as they arrive. Lookups may be cached
// in Redis.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/docstore"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"index_kind", cfg.Indexer.Kind,
		"normalize", cfg.Indexer.Normalize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	engine, err := indexer.NewEngine(cfg.Indexer, m)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents indexed", engine.Len()),
		}
	})

	var statuses consumer.StatusUpdater
	var db *postgres.Client
	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
	}, func(ctx context.Context) error {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		slog.Warn("postgres unavailable, serving without stored documents", "error", err)
	} else {
		defer db.Close()
		store := docstore.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		n, err := engine.Warm(ctx, store.Load)
		if err != nil {
			slog.Error("failed to warm engine", "error", err, "indexed", n)
			os.Exit(1)
		}
		statuses = store
		checker.Register("postgres", health.Ping(db.Ping, false))
	}

	var lookupCache *cache.LookupCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookup caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			lookupCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.Ping(redisClient.Ping, true))
			slog.Info("lookup cache enabled",
				"addr", cfg.Redis.Addr,
				"ttl", cfg.Redis.CacheTTL,
			)
		}
	}

	ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, consumer.HandleMessage(engine, statuses))
	go func() {
		if err := ingestConsumer.Start(ctx); err != nil {
			slog.Error("ingest consumer error", "error", err)
		}
	}()

	h := handler.New(engine, lookupCache)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.RequestTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "documents", engine.Len())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
