package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// handleStatus returns the session status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleStats returns the latest connection sample
func (s *Server) handleStats(c *fiber.Ctx) error {
	sample, ok := s.stats.Latest()
	if !ok {
		return c.Status(fiber.StatusNoContent).Send(nil)
	}
	return c.JSON(sample)
}

// handlePause pauses streaming
func (s *Server) handlePause(c *fiber.Ctx) error {
	s.ctl.SetPaused(true)
	s.logger.Info("pause requested from dashboard", "remote", c.IP())
	return c.Status(fiber.StatusAccepted).JSON(s.status())
}

// handleResume resumes streaming
func (s *Server) handleResume(c *fiber.Ctx) error {
	s.ctl.SetPaused(false)
	s.logger.Info("resume requested from dashboard", "remote", c.IP())
	return c.Status(fiber.StatusAccepted).JSON(s.status())
}

// handleStatsWS streams connection samples, starting with the latest
func (s *Server) handleStatsWS(c *websocket.Conn) {
	s.statsHub.Serve(c)
}

// handleStatusWS streams session transitions, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.statusHub.Serve(c)
}
