package server

import (
	"github.com/gofiber/fiber/v3"
)

func (s *Server) registerRoutes(app *fiber.App) {
	app.Get("/healthz", s.handleHealth)
	app.Get("/api/users", s.handleUsers)
	app.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.SendString("ok")
}

// handleUsers serves the static user directory consumed at client startup.
func (s *Server) handleUsers(c fiber.Ctx) error {
	return c.JSON(s.dir.Users())
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"clients":   s.hub.ClientCount(),
		"channels":  s.store.ChannelCount(),
		"sessions":  s.chat.SessionCount(),
	})
}
