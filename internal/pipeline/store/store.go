// Package store is the durable record of jobs and chunks. Every row carries
// a monotonic version counter; all writes are version-gated compare-and-swap
// statements, the single coordination discipline of the pipeline.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// Rows is the compare-and-swap surface the atomic updater runs on.
type Rows interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	CompareAndSwapJob(ctx context.Context, job *domain.Job) error
	GetChunk(ctx context.Context, jobID string, chunkIndex int) (*domain.Chunk, error)
	CompareAndSwapChunk(ctx context.Context, chunk *domain.Chunk) error
}

// Storage handles all database operations for the pipeline
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a fresh pending job with version 0.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO music_video_jobs (
			job_id, song_id, job_type, status, progress, stitch_triggered,
			version, audio_url, chunk_duration_sec, total_duration_ms,
			created_at, updated_at
		) VALUES (
			:job_id, :song_id, :job_type, :status, :progress, :stitch_triggered,
			:version, :audio_url, :chunk_duration_sec, :total_duration_ms,
			:created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by its ID, including its version.
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, song_id, job_type, status, progress, stitch_triggered,
		       version, audio_url, chunk_duration_sec, total_duration_ms,
		       video_url, video_duration_ms, file_size_bytes, error_message,
		       created_at, updated_at
		FROM music_video_jobs
		WHERE job_id = $1
	`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// CompareAndSwapJob writes the job's mutable fields, conditioned on the
// version the caller read. A lost race returns domain.ErrVersionConflict; on
// success the in-memory version is advanced to match the row.
func (s *Storage) CompareAndSwapJob(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE music_video_jobs
		SET status = :status,
		    progress = :progress,
		    stitch_triggered = :stitch_triggered,
		    total_duration_ms = :total_duration_ms,
		    video_url = :video_url,
		    video_duration_ms = :video_duration_ms,
		    file_size_bytes = :file_size_bytes,
		    error_message = :error_message,
		    version = version + 1,
		    updated_at = NOW()
		WHERE job_id = :job_id AND version = :version
	`

	result, err := s.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}

	job.Version++
	job.UpdatedAt = time.Now()
	return nil
}

// CreateChunks inserts the full chunk set of a job in one batch.
func (s *Storage) CreateChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO music_video_chunks (
			job_id, chunk_index, start_time_ms, end_time_ms, duration_ms,
			status, version, audio_chunk_url, created_at, updated_at
		) VALUES (
			:job_id, :chunk_index, :start_time_ms, :end_time_ms, :duration_ms,
			:status, :version, :audio_chunk_url, :created_at, :updated_at
		)
		ON CONFLICT (job_id, chunk_index) DO NOTHING
	`

	if _, err := s.db.NamedExecContext(ctx, query, chunks); err != nil {
		return fmt.Errorf("failed to create chunks: %w", err)
	}

	return nil
}

// GetChunk retrieves one chunk of a job, including its version.
func (s *Storage) GetChunk(ctx context.Context, jobID string, chunkIndex int) (*domain.Chunk, error) {
	query := `
		SELECT job_id, chunk_index, start_time_ms, end_time_ms, duration_ms,
		       status, version, audio_chunk_url, scene_image_url,
		       video_segment_url, scene_operation_id, video_operation_id,
		       error_message, created_at, updated_at
		FROM music_video_chunks
		WHERE job_id = $1 AND chunk_index = $2
	`

	var chunk domain.Chunk
	if err := s.db.GetContext(ctx, &chunk, query, jobID, chunkIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}

	return &chunk, nil
}

// ListChunks returns every chunk of a job ordered by chunk_index. Readiness
// decisions always re-read through here rather than trust cached state.
func (s *Storage) ListChunks(ctx context.Context, jobID string) ([]domain.Chunk, error) {
	query := `
		SELECT job_id, chunk_index, start_time_ms, end_time_ms, duration_ms,
		       status, version, audio_chunk_url, scene_image_url,
		       video_segment_url, scene_operation_id, video_operation_id,
		       error_message, created_at, updated_at
		FROM music_video_chunks
		WHERE job_id = $1
		ORDER BY chunk_index ASC
	`

	var chunks []domain.Chunk
	if err := s.db.SelectContext(ctx, &chunks, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	return chunks, nil
}

// CompareAndSwapChunk writes the chunk's mutable fields, conditioned on the
// version the caller read.
func (s *Storage) CompareAndSwapChunk(ctx context.Context, chunk *domain.Chunk) error {
	query := `
		UPDATE music_video_chunks
		SET status = :status,
		    audio_chunk_url = :audio_chunk_url,
		    scene_image_url = :scene_image_url,
		    video_segment_url = :video_segment_url,
		    scene_operation_id = :scene_operation_id,
		    video_operation_id = :video_operation_id,
		    error_message = :error_message,
		    version = version + 1,
		    updated_at = NOW()
		WHERE job_id = :job_id AND chunk_index = :chunk_index AND version = :version
	`

	result, err := s.db.NamedExecContext(ctx, query, chunk)
	if err != nil {
		return fmt.Errorf("failed to update chunk: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}

	chunk.Version++
	chunk.UpdatedAt = time.Now()
	return nil
}

// JobCursor is a keyset pagination position over (created_at, job_id). The
// job_id tie-break keeps jobs sharing a creation timestamp from being skipped
// across pages.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns jobs filtered by status with keyset pagination.
func (s *Storage) ListJobs(ctx context.Context, status string, cursor *JobCursor, limit int) ([]domain.Job, error) {
	query := `
		SELECT job_id, song_id, job_type, status, progress, stitch_triggered,
		       version, audio_url, chunk_duration_sec, total_duration_ms,
		       video_url, video_duration_ms, file_size_bytes, error_message,
		       created_at, updated_at
		FROM music_video_jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	if cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, cursor.CreatedAt, cursor.JobID)
		argIdx += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, job_id DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
