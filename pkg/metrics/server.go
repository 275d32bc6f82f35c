package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns an unstarted metrics server scraping gatherer on /metrics.
// A nil gatherer means the default registry.
func NewServer(port int, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	if gatherer == nil {
		mux.Handle("GET /metrics", Handler())
	} else {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StartServer serves the default registry in the background and returns the
// server's shutdown func.
func StartServer(port int) (shutdown func(context.Context) error) {
	server := NewServer(port, nil)
	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
