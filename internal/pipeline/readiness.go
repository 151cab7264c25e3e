package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// EvaluateReadiness decides, after any chunk completion, whether the whole
// job is ready to stitch, and if so transitions it exactly once. N workers
// may race through here for the same job; the version-gated write lets only
// one of them win, and only the winner enqueues the stitch message. The
// job-wide invariant is re-derived by re-reading every chunk row here, never
// assumed from cached state.
func (p *Pipeline) EvaluateReadiness(ctx context.Context, jobID string) error {
	chunks, err := p.store.ListChunks(ctx, jobID)
	if err != nil {
		return domain.NewRetryableError(err)
	}
	if len(chunks) == 0 {
		return nil
	}

	ready := 0
	for i := range chunks {
		switch chunks[i].Status {
		case domain.ChunkStatusFailed:
			// A failed chunk makes the job terminally failed; no stitch.
			return p.propagateChunkFailure(ctx, &chunks[i])
		case domain.ChunkStatusVideoReady:
			ready++
		}
	}

	if ready < len(chunks) {
		p.reportProgress(ctx, jobID, ready, len(chunks))
		return nil
	}

	// All chunks video_ready. CAS the trigger flag; losers observe the flag
	// (or a version conflict) and stop without enqueueing.
	_, err = p.updater.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		if j.IsTerminal() {
			return domain.ErrStitchAlreadyTriggered
		}
		if j.StitchTriggered {
			return domain.ErrStitchAlreadyTriggered
		}
		j.Status = domain.JobStatusProcessing
		j.Progress = domain.ProgressStitching
		j.StitchTriggered = true
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStitchAlreadyTriggered) {
			p.logger.Debug("Stitch already triggered by another worker",
				slog.String("job_id", jobID),
			)
			return nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			// State unknown after exhausted retries; redelivery re-evaluates.
			return domain.NewRetryableError(err)
		}
		return err
	}

	// Winner: enqueue the stitch step. If even the publisher's bounded
	// retries fail, record the stall on the job instead of leaving it silent.
	if err := p.publisher.PublishJSON(ctx, domain.StitchMessage{
		Type:  domain.MessageTypeStitch,
		JobID: jobID,
	}); err != nil {
		p.logger.Error("Failed to enqueue stitch message",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		if _, markErr := p.updater.UpdateJob(ctx, jobID, func(j *domain.Job) error {
			j.SetError("stitch enqueue failed after retries; stuck before stitching, manual retry required")
			return nil
		}); markErr != nil {
			p.logger.Error("Failed to record stitch enqueue failure on job",
				slog.String("job_id", jobID),
				slog.Any("error", markErr),
			)
		}
		return fmt.Errorf("stitch enqueue for job %s: %w", jobID, err)
	}

	p.logger.Info("Stitch triggered",
		slog.String("job_id", jobID),
		slog.Int("chunk_count", len(chunks)),
	)

	return nil
}

// reportProgress records informational progress between chunking and
// stitching. Best-effort: a lost race here changes nothing the state machine
// depends on.
func (p *Pipeline) reportProgress(ctx context.Context, jobID string, ready, total int) {
	progress := domain.ProgressChunked +
		(domain.ProgressStitching-domain.ProgressChunked-5)*ready/total

	if _, err := p.updater.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		if j.IsTerminal() || j.StitchTriggered {
			return domain.ErrStitchAlreadyTriggered
		}
		if progress > j.Progress {
			j.Progress = progress
		}
		return nil
	}); err != nil && !errors.Is(err, domain.ErrStitchAlreadyTriggered) {
		p.logger.Debug("Progress update skipped",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}
