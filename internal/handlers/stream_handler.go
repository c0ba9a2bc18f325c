package handlers

import (
	"context"
	"log/slog"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/MedLinkBack/internal/services"
	chatws "github.com/saeid-a/MedLinkBack/internal/websocket"
)

type streamRegistry interface {
	Acquire(ctx context.Context, userID string) (*services.Session, func(), error)
}

// StreamHandler serves the push stream: the initial snapshot followed by
// the update frames the hub fans out, with client intents applied to the
// same session.
type StreamHandler struct {
	registry streamRegistry
	hub      *chatws.Hub
	logger   *slog.Logger
}

func NewStreamHandler(registry streamRegistry, hub *chatws.Hub, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{registry: registry, hub: hub, logger: logger}
}

// Upgrade rejects plain HTTP requests. It runs after AuthRequired.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}
	if _, ok := currentUserID(c); !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Next()
}

func (h *StreamHandler) Handle(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)

	session, release, err := h.registry.Acquire(context.Background(), userID)
	if err != nil {
		h.logger.Warn("stream session start failed", "user_id", userID, "error", err)
		_ = conn.WriteJSON(chatws.Envelope{Type: "error", Error: "Failed to start session"})
		_ = conn.Close()
		return
	}
	defer release()

	client := chatws.NewClient(h.hub, conn, userID)
	h.hub.Register(client)

	client.PushSnapshot(session.Snapshot())
	go client.WritePump()
	client.ReadPump(session)
}
