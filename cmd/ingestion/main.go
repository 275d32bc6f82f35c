// Command ingestion starts the document ingestion HTTP service.
//
// The service accepts tokenized documents via POST /api/v1/documents,
// validates them, stores them in PostgreSQL, and publishes them to Kafka for
// the searcher to index.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/wordpositions/pkg/postgres"
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
	slog.Info("starting ingestion service", "port", cfg.Ingestion.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Ingestion.MetricsPort)
		defer shutdownMetrics(context.Background())
	}

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
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgres")

	store := docstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(db.Ping, false))

	pub := publisher.New(store, producer)
	h := handler.New(pub, cfg.Indexer)
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Ingestion.Port),
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
