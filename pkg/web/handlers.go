package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-emote/pkg/session"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status   string  `json:"status"`
	Uptime   float64 `json:"uptime_seconds"`
	Sessions int     `json:"sessions"`
	Clients  int     `json:"clients"`
	Devices  int     `json:"devices"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:   "ok",
		Uptime:   time.Since(s.startedAt).Seconds(),
		Sessions: len(s.cfg.Sessions.List()),
	}
	if s.cfg.Events != nil {
		resp.Clients = s.cfg.Events.ClientCount()
	}
	if s.cfg.Ingest != nil {
		resp.Devices = s.cfg.Ingest.DeviceCount()
	}
	return c.JSON(resp)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": s.cfg.Sessions.Statuses()})
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.cfg.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess.Status())
}

// CaptureResponse is returned by POST /api/sessions/:id/capture.
type CaptureResponse struct {
	Outcome session.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
	Status  session.Status  `json:"status"`
}

// handleCapture runs one attempt on demand. Outcomes other than in-flight
// and push-only are reported in the body with 200.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	sess, err := s.cfg.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	outcome, err := sess.TryCapture(c.UserContext())
	if errors.Is(err, session.ErrInFlight) || errors.Is(err, session.ErrNoSource) {
		return err
	}
	resp := CaptureResponse{Outcome: outcome, Status: sess.Status()}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(resp)
}

func (s *Server) handleSupersede(c *fiber.Ctx) error {
	sess, err := s.cfg.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"superseded": sess.Supersede()})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	sess, err := s.cfg.Sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	sess.Reset()
	s.logger.Info("session reset", "session", sess.ID())
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleEventStats(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Events.Stats())
}
