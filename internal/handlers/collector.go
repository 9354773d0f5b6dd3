package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/clustereye/collector/internal/models"
	"github.com/clustereye/collector/internal/parsing"
)

// Summary responds immediately with entity counts of the current snapshot
func (h *Handler) Summary(c *fiber.Ctx) error {
	return c.JSON(h.core.Summary())
}

// GetSnapshot streams a filtered projection of the current snapshot. A
// non-empty body must be a valid filter document.
func (h *Handler) GetSnapshot(c *fiber.Ctx) error {
	h.logger.Info("Snapshot requested", "filter", string(c.Body()))

	filter, ok := h.parseFilter(c)
	if !ok {
		return nil
	}

	return c.JSON(h.core.GetSnapshot(filter))
}

// Refresh waits for a fresh snapshot: attaches to the round in flight or
// starts one, then responds with the updated summary
func (h *Handler) Refresh(c *fiber.Ctx) error {
	h.logger.Info("Refresh requested", "filter", string(c.Body()))

	filter, ok := h.parseFilter(c)
	if !ok {
		return nil
	}

	if err := h.core.Refresh(c.Context(), filter); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    fiber.StatusServiceUnavailable,
				Message: "Refresh failed: " + err.Error(),
			},
		})
	}

	return c.JSON(h.core.Summary())
}

// ForceUpdate starts a forced full round and waits for it to commit
func (h *Handler) ForceUpdate(c *fiber.Ctx) error {
	h.logger.Info("Request to force update")

	if err := h.core.ForceUpdate(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    fiber.StatusServiceUnavailable,
				Message: "Force update failed: " + err.Error(),
			},
		})
	}

	return c.JSON(h.core.Summary())
}

// parseFilter parses an optional filter body. On a syntax error the response
// is written and ok is false.
func (h *Handler) parseFilter(c *fiber.Ctx) (*models.Filter, bool) {
	body := c.Body()
	if len(body) == 0 {
		return nil, true
	}

	filter, err := parsing.ParseFilter(body)
	if err != nil {
		h.logger.Warn("Rejected filter", "error", err)
		_ = c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    -1,
				Message: "Incorrect filter syntax",
			},
		})
		return nil, false
	}

	return filter, true
}
