package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/clustereye/collector/internal/history"
	"github.com/clustereye/collector/internal/models"
)

// HistorySource looks up group history entries
type HistorySource interface {
	GroupHistory(ctx context.Context, groupID int) (*history.GroupHistoryEntry, error)
}

// SetHistorySource attaches the history database reader; without one the
// history route reports the feature as unavailable
func (h *Handler) SetHistorySource(src HistorySource) {
	h.history = src
}

// GroupHistory returns the audited backend set of one group
func (h *Handler) GroupHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    fiber.StatusServiceUnavailable,
				Message: "History database is not configured",
			},
		})
	}

	groupID, err := strconv.Atoi(c.Params("group_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    fiber.StatusBadRequest,
				Message: "group_id must be an integer",
			},
		})
	}

	entry, err := h.history.GroupHistory(c.Context(), groupID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    fiber.StatusInternalServerError,
				Message: "History lookup failed: " + err.Error(),
			},
		})
	}
	if entry == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    fiber.StatusNotFound,
				Message: "No history for group",
			},
		})
	}

	return c.JSON(fiber.Map{
		"group_id":  entry.GroupID,
		"timestamp": entry.Timestamp,
		"empty":     entry.Empty(),
		"backends":  entry.Backends,
	})
}
