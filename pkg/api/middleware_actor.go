package api

import (
	"github.com/gofiber/fiber/v3"
)

// ActorHeader carries the caller's identity. It is recorded as the holder of
// reservations and as the user of history entries.
const ActorHeader = "X-User-Name"

const actorKey = "actor"

func (s *Server) ActorMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		actor := c.Get(ActorHeader)

		if actor == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: "missing " + ActorHeader + " header", Code: CodeUnauthorized})
		}

		c.Locals(actorKey, actor)
		return c.Next()
	}
}

func actorOf(c fiber.Ctx) string {
	actor, _ := c.Locals(actorKey).(string)
	return actor
}
