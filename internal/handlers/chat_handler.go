package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

type ChatHandler struct {
	registry sessionRegistry
}

type startConversationRequest struct {
	UserID string `json:"user_id"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type draftRequest struct {
	Text string `json:"text"`
}

func NewChatHandler(registry sessionRegistry) *ChatHandler {
	return &ChatHandler{registry: registry}
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"conversations": session.Chat().Conversations(),
		"unread_count":  session.Chat().UnreadCount(),
	})
}

func (h *ChatHandler) StartConversation(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req startConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.UserID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	conversation, err := session.Chat().StartConversation(c.Context(), req.UserID)
	if err != nil {
		return mapAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) DeleteConversation(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	if err := session.Chat().DeleteConversation(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMessages pages a conversation from its newest message. Messages
// within a page stay in display order.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, err := session.Chat().FetchMessages(c.Context(), param(c, "id"))
	if err != nil {
		return mapAppError(c, err)
	}
	start, end := pageFromEnd(len(messages), page, limit)

	return c.JSON(fiber.Map{
		"messages":   append([]models.Message{}, messages[start:end]...),
		"pagination": buildPaginationMeta(page, limit, len(messages)),
	})
}

// SendMessage sends to a conversation whose window is open.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := session.Chat().SendMessage(c.Context(), param(c, "id"), req.Content)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

// MessageUser opens the conversation with another user, creating it when
// needed, and sends the first message.
func (h *ChatHandler) MessageUser(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := session.MessageUser(c.Context(), param(c, "id"), req.Content)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	if err := session.Chat().MarkMessagesAsRead(c.Context(), param(c, "id")); err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": session.Chat().UnreadCount()})
}

func (h *ChatHandler) GetDraft(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"text": session.Chat().Draft(param(c, "id"))})
}

func (h *ChatHandler) SetDraft(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	var req draftRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := session.Chat().SetDraft(param(c, "id"), req.Text); err != nil {
		return mapAppError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": session.Chat().UnreadCount()})
}
