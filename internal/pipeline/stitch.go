package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tunereel/tunereel-be/internal/blob"
	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// HandleStitch concatenates a job's normalized segments into the final video
// and completes the job. Redelivery after completion is a no-op.
func (p *Pipeline) HandleStitch(ctx context.Context, msg domain.StitchMessage) error {
	job, err := p.store.GetJob(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		p.logger.Warn("Ignoring stitch message for terminal job",
			slog.String("job_id", job.JobID),
			slog.String("status", job.Status),
		)
		return nil
	}

	chunks, err := p.store.ListChunks(ctx, job.JobID)
	if err != nil {
		return domain.NewRetryableError(err)
	}

	urls := make([]string, 0, len(chunks))
	for i := range chunks {
		chunk := &chunks[i]
		if chunk.Status != domain.ChunkStatusVideoReady || !chunk.VideoSegmentURL.Valid {
			return fmt.Errorf("%w: chunk %d is %s", domain.ErrJobNotReady, chunk.ChunkIndex, chunk.Status)
		}
		urls = append(urls, chunk.VideoSegmentURL.String)
	}
	if len(urls) == 0 {
		return fmt.Errorf("%w: job has no chunks", domain.ErrJobNotReady)
	}

	stitched, err := p.media.Stitch(ctx, urls, blob.FinalVideoKey(job.JobID))
	if err != nil {
		return p.HandleJobFailure(ctx, job.JobID, fmt.Sprintf("stitch failed: %v", err))
	}

	if _, err := p.updater.UpdateJob(ctx, job.JobID, func(j *domain.Job) error {
		if j.IsTerminal() {
			return fmt.Errorf("job became terminal during stitch")
		}
		j.Status = domain.JobStatusCompleted
		j.Progress = domain.ProgressDone
		j.VideoURL.String = stitched.URL
		j.VideoURL.Valid = true
		j.VideoDurationMs.Int64 = stitched.DurationMs
		j.VideoDurationMs.Valid = true
		j.FileSizeBytes.Int64 = stitched.FileSizeBytes
		j.FileSizeBytes.Valid = true
		return nil
	}); err != nil {
		// The output exists but the job row could not be completed; raise so
		// redelivery retries the completion (stitch itself is idempotent on
		// the same key).
		return domain.NewRetryableError(fmt.Errorf("failed to complete job after stitch: %w", err))
	}

	p.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.Int("segment_count", len(urls)),
		slog.Int64("duration_ms", stitched.DurationMs),
		slog.Int64("file_size_bytes", stitched.FileSizeBytes),
	)

	return nil
}
