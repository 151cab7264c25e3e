package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tunereel/tunereel-be/internal/api/dto"
	"github.com/tunereel/tunereel-be/internal/api/storage"
	"github.com/tunereel/tunereel-be/internal/pipeline"
	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
	pipestore "github.com/tunereel/tunereel-be/internal/pipeline/store"
)

// CreateMusicVideo handles POST /api/v1/songs/:song_id/music-video. It creates
// the job row and hands the rest to the worker via the queue; the response is
// the pending job, not the finished video.
func (h *Handler) CreateMusicVideo(c *gin.Context) {
	songID := c.Param("song_id")
	if _, err := uuid.Parse(songID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "song_id must be a valid UUID"})
		return
	}

	// Body is optional; an empty body falls back to defaults.
	var req dto.CreateMusicVideoRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	chunkDuration := req.ChunkDurationSec
	if chunkDuration <= 0 {
		chunkDuration = h.chunkDurationSec
	}
	if chunkDuration > 10 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk_duration_sec must be at most 10"})
		return
	}

	song, err := h.storage.GetSongByID(c.Request.Context(), songID)
	if err != nil {
		if errors.Is(err, storage.ErrSongNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Song not found"})
			return
		}
		h.logger.Error("Failed to get song", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create music video job"})
		return
	}

	now := time.Now()
	job := domain.Job{
		JobID:            uuid.New().String(),
		SongID:           song.SongID,
		JobType:          domain.JobTypeMusicVideo,
		Status:           domain.JobStatusPending,
		AudioURL:         song.AudioURL,
		ChunkDurationSec: chunkDuration,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := h.jobs.CreateJob(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create music video job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create music video job"})
		return
	}

	msg := domain.GenerateMessage{Type: domain.MessageTypeGenerate, JobID: job.JobID}
	if err := h.publisher.PublishJSON(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to enqueue music video job",
			slog.String("jobId", job.JobID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue music video job"})
		return
	}

	h.logger.Info("Music video job created",
		slog.String("jobId", job.JobID),
		slog.String("songId", song.SongID))

	c.JSON(http.StatusAccepted, jobDTO(&job, nil))
}

// GetMusicVideo handles GET /api/v1/music-videos/:job_id
func (h *Handler) GetMusicVideo(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	chunks, err := h.jobs.ListChunks(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to list chunks", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get job"})
		return
	}

	c.JSON(http.StatusOK, jobDTO(job, chunks))
}

// GetMusicVideoManifest handles GET /api/v1/music-videos/:job_id/manifest.
// The manifest only exists once the job is completed; before that the client
// gets a 409 with the current status so it knows to keep polling.
func (h *Handler) GetMusicVideoManifest(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get manifest"})
		return
	}

	if job.Status != domain.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "Manifest is only available for completed jobs",
			"status":   job.Status,
			"progress": job.Progress,
		})
		return
	}

	chunks, err := h.jobs.ListChunks(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to list chunks", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get manifest"})
		return
	}

	manifest, err := pipeline.BuildManifest(job, chunks)
	if err != nil {
		h.logger.Error("Failed to build manifest",
			slog.String("jobId", jobID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build manifest"})
		return
	}

	c.JSON(http.StatusOK, manifest)
}

// ListMusicVideos handles GET /api/v1/music-videos
func (h *Handler) ListMusicVideos(c *gin.Context) {
	var req dto.ListMusicVideosRequest
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

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	jobs, err := h.jobs.ListJobs(c.Request.Context(), req.Status, cursor, pageSize+1)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	resp := dto.ListMusicVideosResponse{}
	if len(jobs) > pageSize {
		jobs = jobs[:pageSize]
		last := &jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&pipestore.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	resp.Jobs = make([]dto.MusicVideoJobDTO, len(jobs))
	for i := range jobs {
		resp.Jobs[i] = jobDTO(&jobs[i], nil)
	}

	c.JSON(http.StatusOK, resp)
}

func jobDTO(job *domain.Job, chunks []domain.Chunk) dto.MusicVideoJobDTO {
	out := dto.MusicVideoJobDTO{
		JobID:           job.JobID,
		SongID:          job.SongID,
		JobType:         job.JobType,
		Status:          job.Status,
		Progress:        job.Progress,
		StitchTriggered: job.StitchTriggered,
		TotalDurationMs: job.TotalDurationMs,
		VideoURL:        job.VideoURL.String,
		Error:           job.ErrorMessage.String,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if len(chunks) > 0 {
		out.Chunks = make([]dto.VideoChunkDTO, len(chunks))
		for i := range chunks {
			chunk := &chunks[i]
			out.Chunks[i] = dto.VideoChunkDTO{
				ChunkIndex:  chunk.ChunkIndex,
				StartTimeMs: chunk.StartTimeMs,
				EndTimeMs:   chunk.EndTimeMs,
				DurationMs:  chunk.DurationMs,
				Status:      chunk.Status,
				Error:       chunk.ErrorMessage.String,
			}
		}
	}
	return out
}
