package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type ConnectionHandler struct {
	registry sessionRegistry
}

type userTargetRequest struct {
	UserID string `json:"user_id"`
}

func NewConnectionHandler(registry sessionRegistry) *ConnectionHandler {
	return &ConnectionHandler{registry: registry}
}

func (h *ConnectionHandler) GetGraph(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"connections": session.Connections().Graph()})
}

func (h *ConnectionHandler) SendRequest(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req userTargetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	connection, err := session.Connections().SendRequest(c.Context(), req.UserID)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"connection": connection})
}

func (h *ConnectionHandler) Accept(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	connection, err := session.Connections().Accept(c.Context(), param(c, "id"))
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"connection": connection})
}

func (h *ConnectionHandler) Reject(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Connections().Reject(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectionHandler) Cancel(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Connections().Cancel(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectionHandler) Remove(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Connections().Remove(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListBlocked returns the users the caller blocked and the union of both
// block directions, which clients hide from every list.
func (h *ConnectionHandler) ListBlocked(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	graph := session.Connections().Graph()
	return c.JSON(fiber.Map{
		"blocked": graph.BlockedByMe,
		"hidden":  session.Connections().HiddenIdentities(),
	})
}

func (h *ConnectionHandler) Block(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req userTargetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := session.Connections().Block(c.Context(), strings.TrimSpace(req.UserID)); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ConnectionHandler) Unblock(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Connections().Unblock(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
