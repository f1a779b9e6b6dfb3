package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-meri/pkg/audioio"
	"github.com/teslashibe/go-meri/pkg/hub"
	"github.com/teslashibe/go-meri/pkg/session"
	"github.com/teslashibe/go-meri/pkg/tools"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TriggerToolRequest is the request body for triggering a tool.
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// ToolResult is the response to a manual tool trigger.
type ToolResult struct {
	CallID   string `json:"call_id"`
	Name     string `json:"name"`
	Output   string `json:"output"`
	Failed   bool   `json:"failed"`
	Duration string `json:"duration"`
}

// MetricsResponse is the body of GET /api/metrics.
type MetricsResponse struct {
	SessionID string          `json:"session_id"`
	Latency   string          `json:"latency"`
	Metrics   session.Metrics `json:"metrics"`
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

// handleStatus returns the latest session snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.manager.Snapshot())
}

// handleOpenSession replaces the current session with a new one.
func (s *Server) handleOpenSession(c *fiber.Ctx) error {
	sess, err := s.manager.Open(c.UserContext())
	if err != nil {
		return fiber.NewError(openErrorStatus(err), session.UserMessage(err))
	}
	return c.Status(fiber.StatusCreated).JSON(sess.Snapshot())
}

func openErrorStatus(err error) int {
	switch {
	case errors.Is(err, audioio.ErrDeviceUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrTransport):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// handleCloseSession closes the current session.
func (s *Server) handleCloseSession(c *fiber.Ctx) error {
	err := s.manager.Close()
	switch {
	case errors.Is(err, session.ErrNoSession):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Warn("session closed with errors", "error", err)
	}
	return c.JSON(s.manager.Snapshot())
}

// handleListTools returns the tool declarations sent to the agent.
func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(s.tools.Declarations())
}

// handleTriggerTool runs a tool as if the agent had called it.
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	var req TriggerToolRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	res := s.tools.Dispatch(c.UserContext(), tools.Invocation{
		CallID:    "manual-" + uuid.NewString(),
		Name:      c.Params("name"),
		Arguments: req.Args,
	})

	out := ToolResult{
		CallID:   res.CallID,
		Name:     res.Name,
		Output:   res.Output,
		Failed:   res.Err != nil,
		Duration: res.Duration.Round(time.Microsecond).String(),
	}
	if err := s.status.Publish(hub.TopicTool, out); err != nil && !errors.Is(err, hub.ErrNotRunning) {
		s.logger.Warn("publish tool result", "error", err)
	}

	if errors.Is(res.Err, tools.ErrUnknownTool) {
		return c.Status(fiber.StatusNotFound).JSON(out)
	}
	return c.JSON(out)
}

// handleMetrics returns the current session's counters.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	sess := s.manager.Current()
	if sess == nil {
		return fiber.NewError(fiber.StatusNotFound, session.ErrNoSession.Error())
	}
	m := sess.Metrics()
	return c.JSON(MetricsResponse{
		SessionID: sess.ID(),
		Latency:   m.Average.FormatLatency(),
		Metrics:   m,
	})
}

// handleDesktop returns the shell state.
func (s *Server) handleDesktop(c *fiber.Ctx) error {
	if s.desktop == nil {
		return fiber.NewError(fiber.StatusNotFound, "no desktop attached")
	}
	return c.JSON(s.desktop.State())
}

// handleStatusWS streams snapshots, desktop changes and tool results.
// A new client first receives the current snapshot and desktop state.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.status, c)

	if msg, err := hub.NewEnvelope(hub.TopicSnapshot, s.manager.Snapshot()); err == nil {
		client.Prime(msg)
	}
	if s.desktop != nil {
		if msg, err := hub.NewEnvelope(hub.TopicDesktop, s.desktop.State()); err == nil {
			client.Prime(msg)
		}
	}

	client.Serve()
}
