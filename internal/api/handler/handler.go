package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tunereel/tunereel-be/internal/api/storage"
	pipestore "github.com/tunereel/tunereel-be/internal/pipeline/store"
	"github.com/tunereel/tunereel-be/shared/postgresql"
)

// Publisher enqueues pipeline messages.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger                  *slog.Logger
	DBClient                *postgresql.Client
	Publisher               Publisher
	DefaultChunkDurationSec int
}

// Handler handles HTTP requests for the catalog and the music-video pipeline
type Handler struct {
	logger           *slog.Logger
	db               *postgresql.Client
	storage          *storage.Storage
	jobs             *pipestore.Storage
	publisher        Publisher
	chunkDurationSec int
}

// New creates a new Handler instance
func New(deps *Dependencies) *Handler {
	chunkDuration := deps.DefaultChunkDurationSec
	if chunkDuration <= 0 {
		chunkDuration = 5
	}
	return &Handler{
		logger:           deps.Logger,
		db:               deps.DBClient,
		storage:          storage.NewStorage(deps.DBClient),
		jobs:             pipestore.NewStorage(deps.DBClient.GetDB(), deps.Logger),
		publisher:        deps.Publisher,
		chunkDurationSec: chunkDuration,
	}
}

// Health handles GET /health. Unhealthy means the database round trip failed.
func (h *Handler) Health(c *gin.Context) {
	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "tunereel-api-service",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "tunereel-api-service",
	})
}
