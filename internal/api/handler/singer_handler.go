package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tunereel/tunereel-be/internal/api/dto"
	"github.com/tunereel/tunereel-be/internal/api/model"
	"github.com/tunereel/tunereel-be/internal/api/storage"
)

// CreateSinger handles POST /api/v1/singers
func (h *Handler) CreateSinger(c *gin.Context) {
	var req dto.CreateSingerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	now := time.Now()
	singer := model.Singer{
		SingerID:  uuid.New().String(),
		Name:      req.Name,
		Bio:       sql.NullString{String: req.Bio, Valid: req.Bio != ""},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.storage.CreateSinger(c.Request.Context(), &singer); err != nil {
		h.logger.Error("Failed to create singer", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create singer"})
		return
	}

	c.JSON(http.StatusCreated, singerDTO(&singer))
}

// GetSinger handles GET /api/v1/singers/:singer_id
func (h *Handler) GetSinger(c *gin.Context) {
	singerID := c.Param("singer_id")
	if _, err := uuid.Parse(singerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "singer_id must be a valid UUID"})
		return
	}

	singer, err := h.storage.GetSingerByID(c.Request.Context(), singerID)
	if err != nil {
		if errors.Is(err, storage.ErrSingerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Singer not found"})
			return
		}
		h.logger.Error("Failed to get singer", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get singer"})
		return
	}

	c.JSON(http.StatusOK, singerDTO(singer))
}

// ListSingers handles GET /api/v1/singers
func (h *Handler) ListSingers(c *gin.Context) {
	singers, err := h.storage.ListSingers(c.Request.Context(), 100)
	if err != nil {
		h.logger.Error("Failed to list singers", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list singers"})
		return
	}

	out := make([]dto.SingerDTO, len(singers))
	for i := range singers {
		out[i] = singerDTO(&singers[i])
	}
	c.JSON(http.StatusOK, gin.H{"singers": out})
}

// UpdateSinger handles PUT /api/v1/singers/:singer_id
func (h *Handler) UpdateSinger(c *gin.Context) {
	singerID := c.Param("singer_id")
	if _, err := uuid.Parse(singerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "singer_id must be a valid UUID"})
		return
	}

	var req dto.UpdateSingerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	singer, err := h.storage.GetSingerByID(c.Request.Context(), singerID)
	if err != nil {
		if errors.Is(err, storage.ErrSingerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Singer not found"})
			return
		}
		h.logger.Error("Failed to get singer", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update singer"})
		return
	}

	if req.Name != "" {
		singer.Name = req.Name
	}
	if req.Bio != "" {
		singer.Bio = sql.NullString{String: req.Bio, Valid: true}
	}

	if err := h.storage.UpdateSinger(c.Request.Context(), singer); err != nil {
		h.logger.Error("Failed to update singer", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update singer"})
		return
	}

	c.JSON(http.StatusOK, singerDTO(singer))
}

// DeleteSinger handles DELETE /api/v1/singers/:singer_id
func (h *Handler) DeleteSinger(c *gin.Context) {
	singerID := c.Param("singer_id")
	if _, err := uuid.Parse(singerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "singer_id must be a valid UUID"})
		return
	}

	if err := h.storage.DeleteSinger(c.Request.Context(), singerID); err != nil {
		if errors.Is(err, storage.ErrSingerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Singer not found"})
			return
		}
		h.logger.Error("Failed to delete singer", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete singer"})
		return
	}

	c.Status(http.StatusNoContent)
}

func singerDTO(singer *model.Singer) dto.SingerDTO {
	return dto.SingerDTO{
		SingerID:  singer.SingerID,
		Name:      singer.Name,
		Bio:       singer.Bio.String,
		CreatedAt: singer.CreatedAt.Format(time.RFC3339),
		UpdatedAt: singer.UpdatedAt.Format(time.RFC3339),
	}
}
