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

	"github.com/clinicore/medrag/internal/bootstrap"
	"github.com/clinicore/medrag/internal/config"
	"github.com/clinicore/medrag/internal/observability/logging"
	"github.com/clinicore/medrag/internal/observability/metrics"
)

const serviceName = "medrag-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Logger: logger})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux(workerMetrics),
	}
	go func() {
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	rebuild := func(handlerCtx context.Context, reason string) error {
		rebuildCtx, cancel := context.WithTimeout(handlerCtx, time.Duration(cfg.RebuildTimeoutSeconds)*time.Second)
		defer cancel()

		workerMetrics.StartRebuild()
		start := time.Now()
		err := app.Lexical.Rebuild(rebuildCtx)
		workerMetrics.FinishRebuild(serviceName, time.Since(start), err)
		if err != nil {
			logger.Error("lexical_index_rebuild_failed", "reason", reason, "error", err)
			return err
		}
		workerMetrics.SetIndexedDocuments(app.Lexical.DocumentCount())
		logger.Info("lexical_index_rebuild_done", "reason", reason, "documents", app.Lexical.DocumentCount())
		return nil
	}

	// Build the first generation on startup, then follow events.
	if err := rebuild(ctx, "startup"); err != nil {
		logger.Warn("startup_rebuild_failed", "error", err)
	}

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	if err := app.Queue.SubscribeKnowledgeUpdated(ctx, rebuild); err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func metricsMux(m *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
