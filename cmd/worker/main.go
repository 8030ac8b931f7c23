package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/bootstrap"
	"github.com/targc/numbervault/pkg/config"
	"github.com/targc/numbervault/pkg/logging"
	"github.com/targc/numbervault/pkg/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerConfig(ctx)

	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logging.Configure(cfg.Log.Level, cfg.Log.Format)

	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if cfg.InMemory() {
		log.Fatal("The worker needs a shared store; the memory driver runs ingestion inside the API server")
	}

	log.Info("Starting NumberVault Worker...")

	backend, err := bootstrap.Open(ctx, cfg.CommonConfig)

	if err != nil {
		log.Fatalf("Failed to open backends: %v", err)
	}

	defer backend.Close()

	pipeline, err := backend.Pipeline()

	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	engine := backend.Engine()
	w := worker.NewWorker(pipeline, backend.Subscriber(), backend.Reaper(engine))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(backend.Registry, promhttp.HandlerOpts{}))

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("Metrics listening on port %s", cfg.MetricsPort)

		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	err = w.Start(ctx)

	if err != nil {
		log.WithError(err).Error("Worker stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to shut down metrics server")
	}
}
