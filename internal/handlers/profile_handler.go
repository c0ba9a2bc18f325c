package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saeid-a/MedLinkBack/internal/models"
)

const (
	minSearchLength    = 2
	defaultSearchLimit = 10
	maxSearchLimit     = 25
)

type profileLookup interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	SearchByName(ctx context.Context, name string, limit int) ([]models.Profile, error)
}

// ProfileHandler serves profile lookups for composing messages and
// requests. Users on either side of a block are hidden from each other.
type ProfileHandler struct {
	profiles profileLookup
	registry sessionRegistry
}

func NewProfileHandler(profiles profileLookup, registry sessionRegistry) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, registry: registry}
}

func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	id := param(c, "id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid profile id"})
	}
	if session.Connections().IsBlocked(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
	}

	profile, err := h.profiles.GetByID(c.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
	}
	if err != nil {
		return mapAppError(c, err)
	}
	return c.JSON(fiber.Map{"profile": profile})
}

func (h *ProfileHandler) Search(c *fiber.Ctx) error {
	session, err := currentSession(c, h.registry)
	if err != nil {
		return mapAppError(c, err)
	}

	query := strings.TrimSpace(c.Query("q"))
	if len([]rune(query)) < minSearchLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q must be at least 2 characters"})
	}
	limit := parsePositiveInt(c.Query("limit"), defaultSearchLimit)
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	found, err := h.profiles.SearchByName(c.Context(), strings.Clone(query), limit)
	if err != nil {
		return mapAppError(c, err)
	}

	self := session.UserID()
	profiles := make([]models.Profile, 0, len(found))
	for _, profile := range found {
		if profile.ID == self || session.Connections().IsBlocked(profile.ID) {
			continue
		}
		profiles = append(profiles, profile)
	}
	return c.JSON(fiber.Map{"profiles": profiles})
}
