package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

type WindowHandler struct {
	registry sessionRegistry
}

type openWindowRequest struct {
	ConversationID string `json:"conversation_id"`
}

func NewWindowHandler(registry sessionRegistry) *WindowHandler {
	return &WindowHandler{registry: registry}
}

func (h *WindowHandler) ListWindows(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"windows": session.Windows()})
}

func (h *WindowHandler) OpenWindow(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req openWindowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "conversation_id is required"})
	}

	window, err := session.OpenWindow(c.Context(), strings.TrimSpace(req.ConversationID))
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"window":  window,
		"windows": session.Windows(),
	})
}

func (h *WindowHandler) CloseWindow(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if !session.CloseWindow(param(c, "id")) {
		return mapAppError(c, apperrors.ErrConversationNotOpen)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WindowHandler) ToggleMinimize(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	window, err := session.ToggleMinimize(c.Context(), param(c, "id"))
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"window": window})
}
