package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/targc/numbervault/pkg/ingest"
	"github.com/targc/numbervault/pkg/lifecycle"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type Server struct {
	engine   *lifecycle.Engine
	uploader *ingest.Uploader
	gatherer prometheus.Gatherer
}

// NewServer wires the HTTP surface. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(engine *lifecycle.Engine, uploader *ingest.Uploader, gatherer prometheus.Gatherer) *Server {
	return &Server{
		engine:   engine,
		uploader: uploader,
		gatherer: gatherer,
	}
}

func numberID(c fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, errBadID
	}
	return id, nil
}
