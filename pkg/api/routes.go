package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes(app *fiber.App) {
	app.Use(recoverer.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", ActorHeader},
	}))

	api := app.Group("/api/v1")

	// Numbers
	api.Get("/numbers", s.HandleSearchNumbers)
	api.Get("/numbers/:id", s.HandleGetNumber)
	api.Get("/numbers/:id/history", s.HandleGetHistory)
	api.Post("/numbers/:id/reserve", s.ActorMiddleware(), s.HandleReserveNumber)
	api.Post("/numbers/:id/allocate", s.ActorMiddleware(), s.HandleAllocateNumber)
	api.Put("/numbers/:id/status", s.ActorMiddleware(), s.HandleChangeStatus)

	// Bulk ingestion
	api.Post("/uploads", s.ActorMiddleware(), s.HandleUpload)
	api.Get("/uploads", s.HandleListUploads)
	api.Get("/uploads/:batchId", s.HandleGetUpload)

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}
