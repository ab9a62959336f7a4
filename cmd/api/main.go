package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/avolkov/grounded-search/internal/adapters/http"
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
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	serverMetrics := metrics.NewHTTPServerMetrics("api")
	router := httpadapter.NewRouter(app.Searcher, app.Repo, serverMetrics, logger, httpadapter.Options{
		Service:          "api",
		RateLimitRPS:     cfg.HTTPRateLimitRPS,
		RateLimitBurst:   cfg.HTTPRateLimitBurst,
		MaxInFlight:      cfg.HTTPMaxInFlight,
		StreamChunkChars: cfg.HTTPStreamChunkLen,
		ValidateRequests: cfg.HTTPRequestValidate,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatalf("listen error: %v", err)
	}
	if cfg.HTTPMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.HTTPMaxConns)
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_conns", cfg.HTTPMaxConns)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
