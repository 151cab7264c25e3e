package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tunereel/tunereel-be/internal/blob"
	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// HandleChunkFailure makes a chunk failure terminal and non-leaking: mark the
// chunk failed, propagate to the parent job, then best-effort cleanup. A
// failure to propagate is returned as ErrPropagationFailed, never swallowed.
func (p *Pipeline) HandleChunkFailure(ctx context.Context, jobID string, chunkIndex int, cause error) error {
	p.logger.Error("Chunk failed",
		slog.String("job_id", jobID),
		slog.Int("chunk_index", chunkIndex),
		slog.Any("error", cause),
	)

	if _, err := p.updater.UpdateChunk(ctx, jobID, chunkIndex, func(c *domain.Chunk) error {
		if c.Status == domain.ChunkStatusFailed {
			return domain.ErrStaleTransition
		}
		c.Fail(cause.Error())
		return nil
	}); err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		// Still propagate to the job below; the chunk row may be stale but
		// the job must not stay live.
		p.logger.Error("Failed to mark chunk failed",
			slog.String("job_id", jobID),
			slog.Int("chunk_index", chunkIndex),
			slog.Any("error", err),
		)
	}

	if err := p.failJob(ctx, jobID, fmt.Sprintf("chunk %d: %v", chunkIndex, cause)); err != nil {
		return fmt.Errorf("%w: job %s chunk %d: %v", domain.ErrPropagationFailed, jobID, chunkIndex, err)
	}

	p.cleanup(ctx, jobID)
	return nil
}

// HandleJobFailure fails a job for a job-level cause (validation, chunking,
// stitching) and runs cleanup.
func (p *Pipeline) HandleJobFailure(ctx context.Context, jobID, reason string) error {
	p.logger.Error("Job failed",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
	)

	if err := p.failJob(ctx, jobID, reason); err != nil {
		return fmt.Errorf("%w: job %s: %v", domain.ErrPropagationFailed, jobID, err)
	}

	p.cleanup(ctx, jobID)
	return nil
}

// failJob transitions the job to failed with the given reason. A job that is
// already failed is left as is.
func (p *Pipeline) failJob(ctx context.Context, jobID, reason string) error {
	_, err := p.updater.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		if j.Status == domain.JobStatusFailed {
			return domain.ErrStaleTransition
		}
		if j.Status == domain.JobStatusCompleted {
			return fmt.Errorf("refusing to fail completed job")
		}
		j.Status = domain.JobStatusFailed
		j.SetError(reason)
		return nil
	})
	if errors.Is(err, domain.ErrStaleTransition) {
		return nil
	}
	return err
}

// propagateChunkFailure fails the job for a chunk already marked failed.
func (p *Pipeline) propagateChunkFailure(ctx context.Context, chunk *domain.Chunk) error {
	reason := fmt.Sprintf("chunk %d: %s", chunk.ChunkIndex, chunk.ErrorMessage.String)
	if !chunk.ErrorMessage.Valid || chunk.ErrorMessage.String == "" {
		reason = fmt.Sprintf("chunk %d failed", chunk.ChunkIndex)
	}

	if err := p.failJob(ctx, chunk.JobID, reason); err != nil {
		return fmt.Errorf("%w: job %s chunk %d: %v", domain.ErrPropagationFailed, chunk.JobID, chunk.ChunkIndex, err)
	}

	p.cleanup(ctx, chunk.JobID)
	return nil
}

// cleanup best-effort cancels in-flight provider operations for every chunk
// of the job and deletes every storage object under the job's prefixes.
// Errors are logged, never re-raised: the job is already terminal, and the
// retention sweep catches anything missed here.
func (p *Pipeline) cleanup(ctx context.Context, jobID string) {
	chunks, err := p.store.ListChunks(ctx, jobID)
	if err != nil {
		p.logger.Warn("Cleanup could not list chunks",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}

	for i := range chunks {
		chunk := &chunks[i]
		if chunk.SceneOperationID.Valid && chunk.SceneOperationID.String != "" {
			if err := p.scenes.Cancel(ctx, chunk.SceneOperationID.String); err != nil {
				p.logger.Warn("Failed to cancel scene operation",
					slog.String("job_id", jobID),
					slog.Int("chunk_index", chunk.ChunkIndex),
					slog.String("operation_id", chunk.SceneOperationID.String),
					slog.Any("error", err),
				)
			}
		}
		if chunk.VideoOperationID.Valid && chunk.VideoOperationID.String != "" {
			if err := p.videos.Cancel(ctx, chunk.VideoOperationID.String); err != nil {
				p.logger.Warn("Failed to cancel video operation",
					slog.String("job_id", jobID),
					slog.Int("chunk_index", chunk.ChunkIndex),
					slog.String("operation_id", chunk.VideoOperationID.String),
					slog.Any("error", err),
				)
			}
		}
	}

	for _, prefix := range blob.JobPrefixes(jobID) {
		deleted, err := p.blobs.DeleteByPrefix(ctx, prefix)
		if err != nil {
			p.logger.Warn("Failed to delete job artifacts",
				slog.String("job_id", jobID),
				slog.String("prefix", prefix),
				slog.Any("error", err),
			)
			continue
		}
		if deleted > 0 {
			p.logger.Info("Deleted job artifacts",
				slog.String("job_id", jobID),
				slog.String("prefix", prefix),
				slog.Int("count", deleted),
			)
		}
	}
}
