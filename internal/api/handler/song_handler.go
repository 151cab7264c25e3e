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

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateSong handles POST /api/v1/songs
func (h *Handler) CreateSong(c *gin.Context) {
	var req dto.CreateSongRequest
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create song"})
		return
	}

	now := time.Now()
	song := model.Song{
		SongID:    uuid.New().String(),
		SingerID:  req.SingerID,
		AlbumID:   sql.NullString{String: req.AlbumID, Valid: req.AlbumID != ""},
		Title:     req.Title,
		AudioURL:  req.AudioURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.storage.CreateSong(c.Request.Context(), &song); err != nil {
		h.logger.Error("Failed to create song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create song"})
		return
	}

	c.JSON(http.StatusCreated, songDTO(&song))
}

// GetSong handles GET /api/v1/songs/:song_id
func (h *Handler) GetSong(c *gin.Context) {
	songID := c.Param("song_id")
	if _, err := uuid.Parse(songID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song_id must be a valid UUID"})
		return
	}

	song, err := h.storage.GetSongByID(c.Request.Context(), songID)
	if err != nil {
		if errors.Is(err, storage.ErrSongNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
			return
		}
		h.logger.Error("Failed to get song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get song"})
		return
	}

	c.JSON(http.StatusOK, songDTO(song))
}

// ListSongs handles GET /api/v1/songs
func (h *Handler) ListSongs(c *gin.Context) {
	var req dto.ListSongsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	cursor, err := DecodeSongCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	songs, err := h.storage.ListSongs(c.Request.Context(), storage.SongFilter{
		SingerID: req.SingerID,
		AlbumID:  req.AlbumID,
		PageSize: pageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list songs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list songs"})
		return
	}

	resp := dto.ListSongsResponse{}
	if len(songs) > pageSize {
		songs = songs[:pageSize]
		last := songs[len(songs)-1]
		resp.NextCursor = EncodeSongCursor(&storage.SongCursor{
			CreatedAt: last.CreatedAt,
			SongID:    last.SongID,
		})
	}

	resp.Songs = make([]dto.SongDTO, len(songs))
	for i := range songs {
		resp.Songs[i] = songDTO(&songs[i])
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateSong handles PUT /api/v1/songs/:song_id
func (h *Handler) UpdateSong(c *gin.Context) {
	songID := c.Param("song_id")
	if _, err := uuid.Parse(songID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song_id must be a valid UUID"})
		return
	}

	var req dto.UpdateSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	song, err := h.storage.GetSongByID(c.Request.Context(), songID)
	if err != nil {
		if errors.Is(err, storage.ErrSongNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
			return
		}
		h.logger.Error("Failed to get song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update song"})
		return
	}

	if req.Title != "" {
		song.Title = req.Title
	}
	if req.AlbumID != "" {
		song.AlbumID = sql.NullString{String: req.AlbumID, Valid: true}
	}
	if req.AudioURL != "" {
		song.AudioURL = req.AudioURL
	}

	if err := h.storage.UpdateSong(c.Request.Context(), song); err != nil {
		h.logger.Error("Failed to update song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update song"})
		return
	}

	c.JSON(http.StatusOK, songDTO(song))
}

// DeleteSong handles DELETE /api/v1/songs/:song_id
func (h *Handler) DeleteSong(c *gin.Context) {
	songID := c.Param("song_id")
	if _, err := uuid.Parse(songID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song_id must be a valid UUID"})
		return
	}

	if err := h.storage.DeleteSong(c.Request.Context(), songID); err != nil {
		if errors.Is(err, storage.ErrSongNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
			return
		}
		h.logger.Error("Failed to delete song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete song"})
		return
	}

	c.Status(http.StatusNoContent)
}

func songDTO(song *model.Song) dto.SongDTO {
	return dto.SongDTO{
		SongID:     song.SongID,
		SingerID:   song.SingerID,
		AlbumID:    song.AlbumID.String,
		Title:      song.Title,
		AudioURL:   song.AudioURL,
		DurationMs: song.DurationMs.Int64,
		CreatedAt:  song.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  song.UpdatedAt.Format(time.RFC3339),
	}
}
