package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/targc/numbervault/pkg/models"
)

type ChangeStatusRequest struct {
	Status models.Status `json:"status" validate:"required"`
	Reason string        `json:"reason" validate:"max=1000"`
}

func (s *Server) HandleReserveNumber(c fiber.Ctx) error {
	id, err := numberID(c)
	if err != nil {
		return writeError(c, err)
	}

	number, err := s.engine.Reserve(c.Context(), id, actorOf(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(number)
}

func (s *Server) HandleAllocateNumber(c fiber.Ctx) error {
	id, err := numberID(c)
	if err != nil {
		return writeError(c, err)
	}

	number, err := s.engine.Allocate(c.Context(), id, actorOf(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(number)
}

func (s *Server) HandleChangeStatus(c fiber.Ctx) error {
	id, err := numberID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req ChangeStatusRequest
	if err := c.Bind().JSON(&req); err != nil {
		return writeError(c, errBadBody)
	}

	if err := validate.Struct(req); err != nil {
		return writeError(c, err)
	}

	number, err := s.engine.ChangeStatus(c.Context(), id, req.Status, actorOf(c), req.Reason)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(number)
}
