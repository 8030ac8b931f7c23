package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/search"
)

type SearchNumbersResponse struct {
	Numbers []*models.TelephoneNumber `json:"numbers"`
	Page    int                       `json:"page"`
	Size    int                       `json:"size"`
}

func (s *Server) HandleSearchNumbers(c fiber.Ctx) error {
	var criteria search.Criteria

	if err := c.Bind().Query(&criteria); err != nil {
		return writeError(c, errBadBody)
	}

	criteria = criteria.Normalize()

	numbers, err := s.engine.Search(c.Context(), criteria)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(SearchNumbersResponse{
		Numbers: numbers,
		Page:    criteria.Page,
		Size:    criteria.Size,
	})
}

func (s *Server) HandleGetNumber(c fiber.Ctx) error {
	id, err := numberID(c)
	if err != nil {
		return writeError(c, err)
	}

	number, err := s.engine.Get(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(number)
}

func (s *Server) HandleGetHistory(c fiber.Ctx) error {
	id, err := numberID(c)
	if err != nil {
		return writeError(c, err)
	}

	history, err := s.engine.History(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(history)
}
