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

// CreateAlbum handles POST /api/v1/albums
func (h *Handler) CreateAlbum(c *gin.Context) {
	var req dto.CreateAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.storage.GetSingerByID(c.Request.Context(), req.SingerID); err != nil {
		if errors.Is(err, storage.ErrSingerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Singer not found"})
			return
		}
		h.logger.Error("Failed to get singer", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create album"})
		return
	}

	now := time.Now()
	album := model.Album{
		AlbumID:     uuid.New().String(),
		SingerID:    req.SingerID,
		Title:       req.Title,
		ReleaseYear: sql.NullInt64{Int64: int64(req.ReleaseYear), Valid: req.ReleaseYear != 0},
		CoverURL:    sql.NullString{String: req.CoverURL, Valid: req.CoverURL != ""},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.storage.CreateAlbum(c.Request.Context(), &album); err != nil {
		h.logger.Error("Failed to create album", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create album"})
		return
	}

	c.JSON(http.StatusCreated, albumDTO(&album))
}

// GetAlbum handles GET /api/v1/albums/:album_id
func (h *Handler) GetAlbum(c *gin.Context) {
	albumID := c.Param("album_id")
	if _, err := uuid.Parse(albumID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "album_id must be a valid UUID"})
		return
	}

	album, err := h.storage.GetAlbumByID(c.Request.Context(), albumID)
	if err != nil {
		if errors.Is(err, storage.ErrAlbumNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Album not found"})
			return
		}
		h.logger.Error("Failed to get album", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get album"})
		return
	}

	c.JSON(http.StatusOK, albumDTO(album))
}

// ListSingerAlbums handles GET /api/v1/singers/:singer_id/albums
func (h *Handler) ListSingerAlbums(c *gin.Context) {
	singerID := c.Param("singer_id")
	if _, err := uuid.Parse(singerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "singer_id must be a valid UUID"})
		return
	}

	albums, err := h.storage.ListAlbumsBySinger(c.Request.Context(), singerID, 100)
	if err != nil {
		h.logger.Error("Failed to list albums", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list albums"})
		return
	}

	out := make([]dto.AlbumDTO, len(albums))
	for i := range albums {
		out[i] = albumDTO(&albums[i])
	}
	c.JSON(http.StatusOK, gin.H{"albums": out})
}

// DeleteAlbum handles DELETE /api/v1/albums/:album_id
func (h *Handler) DeleteAlbum(c *gin.Context) {
	albumID := c.Param("album_id")
	if _, err := uuid.Parse(albumID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "album_id must be a valid UUID"})
		return
	}

	if err := h.storage.DeleteAlbum(c.Request.Context(), albumID); err != nil {
		if errors.Is(err, storage.ErrAlbumNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Album not found"})
			return
		}
		h.logger.Error("Failed to delete album", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete album"})
		return
	}

	c.Status(http.StatusNoContent)
}

func albumDTO(album *model.Album) dto.AlbumDTO {
	return dto.AlbumDTO{
		AlbumID:     album.AlbumID,
		SingerID:    album.SingerID,
		Title:       album.Title,
		ReleaseYear: int(album.ReleaseYear.Int64),
		CoverURL:    album.CoverURL.String,
		CreatedAt:   album.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   album.UpdatedAt.Format(time.RFC3339),
	}
}
