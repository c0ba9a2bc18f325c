package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saeid-a/MedLinkBack/internal/services"
	apperrors "github.com/saeid-a/MedLinkBack/pkg/errors"
)

type sessionRegistry interface {
	SignIn(ctx context.Context, userID string) (*services.Session, error)
	SignOut(userID string) bool
}

type streamDisconnecter interface {
	Disconnect(userID string)
}

type SessionHandler struct {
	registry sessionRegistry
	streams  streamDisconnecter
}

func NewSessionHandler(registry sessionRegistry, streams streamDisconnecter) *SessionHandler {
	return &SessionHandler{registry: registry, streams: streams}
}

func currentUserID(c *fiber.Ctx) (string, bool) {
	userID, ok := c.Locals("user_id").(string)
	userID = strings.TrimSpace(userID)
	return userID, ok && userID != ""
}

// param copies a route parameter; fiber reuses the underlying buffer once
// the handler returns.
func param(c *fiber.Ctx, name string) string {
	return strings.Clone(strings.TrimSpace(c.Params(name)))
}

// currentSession returns the caller's session, signing them in on first
// use.
func currentSession(c *fiber.Ctx, registry sessionRegistry) (*services.Session, error) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, apperrors.ErrNotSignedIn
	}
	return registry.SignIn(c.Context(), userID)
}

// SignIn starts the caller's session and returns its first snapshot.
func (h *SessionHandler) SignIn(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session.Snapshot()})
}

func (h *SessionHandler) Snapshot(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"session": session.Snapshot()})
}

// Resync rebuilds the caller's push channels and projections, as a
// reconnect would.
func (h *SessionHandler) Resync(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}
	if err := session.Resync(c.Context()); err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"session": session.Snapshot()})
}

// SignOut clears the caller's session and closes their stream clients.
func (h *SessionHandler) SignOut(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return mapAppError(c, apperrors.ErrNotSignedIn)
	}
	h.registry.SignOut(userID)
	if h.streams != nil {
		h.streams.Disconnect(userID)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
