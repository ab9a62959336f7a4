package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/grounded-search/internal/bootstrap"
	"github.com/avolkov/grounded-search/internal/config"
	"github.com/avolkov/grounded-search/internal/observability/logging"
	"github.com/avolkov/grounded-search/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsHandler(workerMetrics),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIndexRequested(ctx, func(handlerCtx context.Context, recordIDs []string) error {
		batchCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		start := time.Now()
		workerMetrics.StartBatch("worker", len(recordIDs))
		indexErr := app.Indexer.IndexByIDs(batchCtx, recordIDs)
		indexed := 0
		if indexErr == nil {
			indexed = len(recordIDs)
		}
		workerMetrics.FinishBatch("worker", indexed, time.Since(start), indexErr)
		return indexErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func metricsHandler(workerMetrics *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
