package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/clinicore/medrag/internal/adapters/http"
	"github.com/clinicore/medrag/internal/bootstrap"
	"github.com/clinicore/medrag/internal/config"
	"github.com/clinicore/medrag/internal/observability/logging"
	"github.com/clinicore/medrag/internal/observability/metrics"
)

const serviceName = "medrag-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMetrics := metrics.NewHTTPServerMetrics(serviceName)
	engineSink := serverMetrics.EngineSink(serviceName)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:         logger,
		EngineMetrics:  engineSink,
		ConsultMetrics: engineSink,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	// Build the first lexical index generation before serving; a failure is
	// not fatal, the lexical path degrades to empty until the worker rebuilds.
	warmupCtx, cancelWarmup := context.WithTimeout(ctx, time.Duration(cfg.RebuildTimeoutSeconds)*time.Second)
	if err := app.Lexical.Rebuild(warmupCtx); err != nil {
		logger.Warn("initial_lexical_index_build_failed", "error", err)
	}
	cancelWarmup()

	router := httpadapter.NewRouter(app.ConsultUC, app.Queue, httpadapter.RouterOptions{
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxInFlight:      cfg.APIMaxInFlight,
		StreamChunkChars: cfg.StreamChunkChars,
		Metrics:          serverMetrics,
		MetricsService:   serviceName,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown error: %v", err)
	}
}
