// Package handlers exposes the collector operations over HTTP.
package handlers

import (
	"context"

	"github.com/clustereye/collector/internal/cluster"
	"github.com/clustereye/collector/internal/logging"
	"github.com/clustereye/collector/internal/models"
)

// Core is the collector surface the handlers drive
type Core interface {
	Summary() models.SummaryResponse
	GetSnapshot(filter *models.Filter) *cluster.SnapshotView
	Refresh(ctx context.Context, filter *models.Filter) error
	ForceUpdate(ctx context.Context) error
}

// Handler contains all HTTP handlers
type Handler struct {
	logger  *logging.Logger
	core    Core
	history HistorySource
}

// New creates a new handler instance
func New(logger *logging.Logger, core Core) *Handler {
	return &Handler{
		logger: logger,
		core:   core,
	}
}
