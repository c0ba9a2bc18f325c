package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/MedLinkBack/pkg/utils"
)

// AuthHandler covers the token side of authentication. Accounts live with
// the identity provider; the server only verifies the tokens it issues.
type AuthHandler struct {
	profiles  profileLookup
	jwtSecret string
}

type devTokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func NewAuthHandler(profiles profileLookup, jwtSecret string) *AuthHandler {
	return &AuthHandler{profiles: profiles, jwtSecret: jwtSecret}
}

// DevToken signs a token for an existing profile. Only mounted in
// development.
func (h *AuthHandler) DevToken(c *fiber.Ctx) error {
	var req devTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	userID := strings.TrimSpace(req.UserID)
	if _, err := uuid.Parse(userID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}
	if _, err := h.profiles.GetByID(c.Context(), userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch profile"})
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = "member"
	}
	token, err := utils.GenerateToken(userID, role, h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate token"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token":      token,
		"expires_in": int(utils.DefaultTokenTTL.Seconds()),
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	role, _ := c.Locals("role").(string)

	profile, err := h.profiles.GetByID(c.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch profile"})
	}

	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"id":   userID,
			"role": role,
		},
		"profile": profile,
	})
}
