package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type NotificationHandler struct {
	registry sessionRegistry
}

func NewNotificationHandler(registry sessionRegistry) *NotificationHandler {
	return &NotificationHandler{registry: registry}
}

func (h *NotificationHandler) List(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"notifications": session.Notifications().Notifications(),
		"unread_count":  session.Notifications().UnreadCount(),
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Notifications().MarkAsRead(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": session.Notifications().UnreadCount()})
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Notifications().MarkAllAsRead(c.Context()); err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": 0})
}

func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Notifications().Delete(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) ClearAll(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Notifications().ClearAll(c.Context()); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
