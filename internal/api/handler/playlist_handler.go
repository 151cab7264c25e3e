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

// CreatePlaylist handles POST /api/v1/playlists
func (h *Handler) CreatePlaylist(c *gin.Context) {
	var req dto.CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	now := time.Now()
	playlist := model.Playlist{
		PlaylistID: uuid.New().String(),
		Name:       req.Name,
		OwnerID:    sql.NullString{String: req.OwnerID, Valid: req.OwnerID != ""},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.storage.CreatePlaylist(c.Request.Context(), &playlist); err != nil {
		h.logger.Error("Failed to create playlist", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create playlist"})
		return
	}

	c.JSON(http.StatusCreated, playlistDTO(&playlist, nil))
}

// GetPlaylist handles GET /api/v1/playlists/:playlist_id
func (h *Handler) GetPlaylist(c *gin.Context) {
	playlistID := c.Param("playlist_id")
	if _, err := uuid.Parse(playlistID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playlist_id must be a valid UUID"})
		return
	}

	playlist, err := h.storage.GetPlaylistByID(c.Request.Context(), playlistID)
	if err != nil {
		if errors.Is(err, storage.ErrPlaylistNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Playlist not found"})
			return
		}
		h.logger.Error("Failed to get playlist", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get playlist"})
		return
	}

	songs, err := h.storage.ListPlaylistSongs(c.Request.Context(), playlistID)
	if err != nil {
		h.logger.Error("Failed to list playlist songs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get playlist"})
		return
	}

	c.JSON(http.StatusOK, playlistDTO(playlist, songs))
}

// AddPlaylistSong handles POST /api/v1/playlists/:playlist_id/songs
func (h *Handler) AddPlaylistSong(c *gin.Context) {
	playlistID := c.Param("playlist_id")
	if _, err := uuid.Parse(playlistID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playlist_id must be a valid UUID"})
		return
	}

	var req dto.AddPlaylistSongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if _, err := h.storage.GetPlaylistByID(c.Request.Context(), playlistID); err != nil {
		if errors.Is(err, storage.ErrPlaylistNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Playlist not found"})
			return
		}
		h.logger.Error("Failed to get playlist", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add song"})
		return
	}

	if _, err := h.storage.GetSongByID(c.Request.Context(), req.SongID); err != nil {
		if errors.Is(err, storage.ErrSongNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
			return
		}
		h.logger.Error("Failed to get song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add song"})
		return
	}

	if err := h.storage.AddPlaylistSong(c.Request.Context(), playlistID, req.SongID); err != nil {
		h.logger.Error("Failed to add playlist song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add song"})
		return
	}

	c.Status(http.StatusNoContent)
}

// RemovePlaylistSong handles DELETE /api/v1/playlists/:playlist_id/songs/:song_id
func (h *Handler) RemovePlaylistSong(c *gin.Context) {
	playlistID := c.Param("playlist_id")
	songID := c.Param("song_id")
	if _, err := uuid.Parse(playlistID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playlist_id must be a valid UUID"})
		return
	}
	if _, err := uuid.Parse(songID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song_id must be a valid UUID"})
		return
	}

	if err := h.storage.RemovePlaylistSong(c.Request.Context(), playlistID, songID); err != nil {
		h.logger.Error("Failed to remove playlist song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove song"})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeletePlaylist handles DELETE /api/v1/playlists/:playlist_id
func (h *Handler) DeletePlaylist(c *gin.Context) {
	playlistID := c.Param("playlist_id")
	if _, err := uuid.Parse(playlistID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "playlist_id must be a valid UUID"})
		return
	}

	if err := h.storage.DeletePlaylist(c.Request.Context(), playlistID); err != nil {
		if errors.Is(err, storage.ErrPlaylistNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Playlist not found"})
			return
		}
		h.logger.Error("Failed to delete playlist", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete playlist"})
		return
	}

	c.Status(http.StatusNoContent)
}

func playlistDTO(playlist *model.Playlist, songs []model.Song) dto.PlaylistDTO {
	out := dto.PlaylistDTO{
		PlaylistID: playlist.PlaylistID,
		Name:       playlist.Name,
		OwnerID:    playlist.OwnerID.String,
		CreatedAt:  playlist.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  playlist.UpdatedAt.Format(time.RFC3339),
	}
	if len(songs) > 0 {
		out.Songs = make([]dto.SongDTO, len(songs))
		for i := range songs {
			out.Songs[i] = songDTO(&songs[i])
		}
	}
	return out
}
