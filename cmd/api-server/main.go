package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	log "github.com/sirupsen/logrus"
	"github.com/targc/numbervault/pkg/api"
	"github.com/targc/numbervault/pkg/bootstrap"
	"github.com/targc/numbervault/pkg/config"
	"github.com/targc/numbervault/pkg/ingest"
	"github.com/targc/numbervault/pkg/logging"
	"github.com/targc/numbervault/pkg/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIConfig(ctx)

	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logging.Configure(cfg.Log.Level, cfg.Log.Format)

	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	log.Info("Starting NumberVault API Server...")

	backend, err := bootstrap.Open(ctx, cfg.CommonConfig)

	if err != nil {
		log.Fatalf("Failed to open backends: %v", err)
	}

	defer backend.Close()

	engine := backend.Engine()
	uploader := ingest.NewUploader(backend.Jobs, backend.Staging, backend.Publisher())

	// Nothing outside this process can see an in-memory store, so ingestion
	// and the reaper run here too.
	if cfg.InMemory() {
		pipeline, err := backend.Pipeline()

		if err != nil {
			log.Fatalf("Failed to create pipeline: %v", err)
		}

		w := worker.NewWorker(pipeline, backend.Subscriber(), backend.Reaper(engine))

		go func() {
			if err := w.Start(ctx); err != nil {
				log.WithError(err).Error("In-process worker stopped")
			}
		}()
	}

	app := fiber.New(fiber.Config{
		AppName:   "NumberVault API Server",
		BodyLimit: 64 * 1024 * 1024,
	})

	server := api.NewServer(engine, uploader, backend.Registry)
	server.SetupRoutes(app)

	go func() {
		<-ctx.Done()
		log.Info("Shutting down API server...")

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("Failed to shut down server")
		}
	}()

	log.Infof("API Server listening on port %s", cfg.ServerPort)

	err = app.Listen(":" + cfg.ServerPort)

	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
