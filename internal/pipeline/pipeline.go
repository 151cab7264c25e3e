// Package pipeline is the chunked job orchestrator: it drives each chunk
// through its forward-only state machine, decides when a job is ready to
// stitch, triggers stitching exactly once under concurrent evaluation,
// propagates partial failures, and cleans up orphaned provider and storage
// state. Workers are queue consumers; the versioned store is the only shared
// state between them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tunereel/tunereel-be/internal/blob"
	"github.com/tunereel/tunereel-be/internal/media"
	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
	"github.com/tunereel/tunereel-be/internal/providers"
)

// Store is the read side of the persistent store the pipeline needs.
type Store interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetChunk(ctx context.Context, jobID string, chunkIndex int) (*domain.Chunk, error)
	ListChunks(ctx context.Context, jobID string) ([]domain.Chunk, error)
	CreateChunks(ctx context.Context, chunks []domain.Chunk) error
}

// Updater is the retrying compare-and-swap write side; nothing in the
// pipeline mutates a row any other way.
type Updater interface {
	UpdateJob(ctx context.Context, jobID string, mutate func(*domain.Job) error) (*domain.Job, error)
	UpdateChunk(ctx context.Context, jobID string, chunkIndex int, mutate func(*domain.Chunk) error) (*domain.Chunk, error)
}

// Publisher enqueues pipeline messages with its own bounded retries.
type Publisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// Blobs is the slice of object storage the pipeline needs for cleanup.
type Blobs interface {
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// Config holds pipeline tuning.
type Config struct {
	TargetFps         int
	MaxChunks         int
	ScenePollInterval time.Duration
	ScenePollTimeout  time.Duration
	VideoPollInterval time.Duration
	VideoPollTimeout  time.Duration
}

// Pipeline orchestrates music-video generation jobs.
type Pipeline struct {
	logger    *slog.Logger
	store     Store
	updater   Updater
	publisher Publisher
	blobs     Blobs
	media     media.Transformer
	scenes    providers.SceneGenerator
	videos    providers.VideoGenerator
	config    Config
}

// New creates a pipeline.
func New(
	logger *slog.Logger,
	store Store,
	updater Updater,
	publisher Publisher,
	blobs Blobs,
	transformer media.Transformer,
	scenes providers.SceneGenerator,
	videos providers.VideoGenerator,
	config Config,
) *Pipeline {
	if config.TargetFps <= 0 {
		config.TargetFps = 24
	}
	if config.MaxChunks <= 0 {
		config.MaxChunks = 120
	}
	return &Pipeline{
		logger:    logger,
		store:     store,
		updater:   updater,
		publisher: publisher,
		blobs:     blobs,
		media:     transformer,
		scenes:    scenes,
		videos:    videos,
		config:    config,
	}
}

// HandleGenerate performs the kickoff step: validate the source audio, split
// it into chunks, persist the chunk rows, and enqueue one audio-stage message
// per chunk. Redelivery after the chunk rows exist resumes by re-enqueueing
// instead of re-chunking.
func (p *Pipeline) HandleGenerate(ctx context.Context, msg domain.GenerateMessage) error {
	job, err := p.store.GetJob(ctx, msg.JobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		p.logger.Warn("Ignoring generate message for terminal job",
			slog.String("job_id", job.JobID),
			slog.String("status", job.Status),
		)
		return nil
	}

	existing, err := p.store.ListChunks(ctx, job.JobID)
	if err != nil {
		return domain.NewRetryableError(err)
	}
	if len(existing) > 0 {
		return p.resumeGenerate(ctx, job, existing)
	}

	durationMs, err := p.media.ProbeDuration(ctx, job.AudioURL)
	if err != nil {
		return p.HandleJobFailure(ctx, job.JobID, fmt.Sprintf("audio probe failed: %v", err))
	}
	if err := media.ValidateSourceDuration(durationMs); err != nil {
		return p.HandleJobFailure(ctx, job.JobID, err.Error())
	}

	plan, err := media.PlanChunks(durationMs, job.ChunkDurationSec)
	if err != nil {
		return p.HandleJobFailure(ctx, job.JobID, err.Error())
	}
	if len(plan) > p.config.MaxChunks {
		return p.HandleJobFailure(ctx, job.JobID,
			fmt.Sprintf("%v: %d chunks, maximum %d", domain.ErrTooManyChunks, len(plan), p.config.MaxChunks))
	}

	if _, err := p.updater.UpdateJob(ctx, job.JobID, func(j *domain.Job) error {
		if j.IsTerminal() {
			return fmt.Errorf("job became terminal during kickoff")
		}
		j.Status = domain.JobStatusProcessing
		j.TotalDurationMs = durationMs
		return nil
	}); err != nil {
		return domain.NewRetryableError(err)
	}

	audioChunks, err := p.media.ChunkAudio(ctx, job.AudioURL, func(index int) string {
		return blob.AudioChunkKey(job.JobID, index)
	}, job.ChunkDurationSec, durationMs)
	if err != nil {
		return p.HandleJobFailure(ctx, job.JobID, fmt.Sprintf("audio chunking failed: %v", err))
	}

	now := time.Now()
	chunks := make([]domain.Chunk, 0, len(audioChunks))
	for _, ac := range audioChunks {
		chunk := domain.Chunk{
			JobID:       job.JobID,
			ChunkIndex:  ac.Index,
			StartTimeMs: ac.StartTimeMs,
			EndTimeMs:   ac.EndTimeMs,
			DurationMs:  ac.DurationMs,
			Status:      domain.ChunkStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		chunk.AudioChunkURL.String = ac.URL
		chunk.AudioChunkURL.Valid = true
		chunks = append(chunks, chunk)
	}
	if err := p.store.CreateChunks(ctx, chunks); err != nil {
		return domain.NewRetryableError(err)
	}

	if _, err := p.updater.UpdateJob(ctx, job.JobID, func(j *domain.Job) error {
		if j.IsTerminal() {
			return fmt.Errorf("job became terminal during kickoff")
		}
		j.Progress = domain.ProgressChunked
		return nil
	}); err != nil {
		p.logger.Error("Failed to record chunked progress",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
	}

	for _, chunk := range chunks {
		if err := p.publisher.PublishJSON(ctx, domain.ChunkStageMessage{
			Type:       domain.MessageTypeChunkStage,
			JobID:      job.JobID,
			ChunkIndex: chunk.ChunkIndex,
			Stage:      domain.StageAudio,
			ResultURL:  chunk.AudioChunkURL.String,
		}); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to enqueue audio stage for chunk %d: %w", chunk.ChunkIndex, err))
		}
	}

	p.logger.Info("Job chunked and dispatched",
		slog.String("job_id", job.JobID),
		slog.Int("chunk_count", len(chunks)),
		slog.Int64("total_duration_ms", durationMs),
	)

	return nil
}

// resumeGenerate re-enqueues the next message for every chunk of a job whose
// kickoff was redelivered after the chunk rows were written.
func (p *Pipeline) resumeGenerate(ctx context.Context, job *domain.Job, chunks []domain.Chunk) error {
	p.logger.Info("Resuming redelivered kickoff",
		slog.String("job_id", job.JobID),
		slog.Int("chunk_count", len(chunks)),
	)

	for i := range chunks {
		if err := p.enqueueNextStage(ctx, &chunks[i]); err != nil {
			return domain.NewRetryableError(err)
		}
	}
	return p.EvaluateReadiness(ctx, job.JobID)
}

// HandleChunkStage advances one chunk in response to a completed sub-task.
// Transitions never skip stages and never revert; a redelivered message whose
// transition already applied resumes by re-enqueueing the next step.
func (p *Pipeline) HandleChunkStage(ctx context.Context, msg domain.ChunkStageMessage) error {
	switch msg.Stage {
	case domain.StageAudio:
		return p.handleAudioStage(ctx, msg)
	case domain.StageScene:
		return p.handleSceneStage(ctx, msg)
	case domain.StageVideo:
		return p.handleVideoStage(ctx, msg)
	default:
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidMessage, msg.Stage)
	}
}

// handleAudioStage: pending → audio_ready, then start scene generation and
// move to scene_generating.
func (p *Pipeline) handleAudioStage(ctx context.Context, msg domain.ChunkStageMessage) error {
	chunk, err := p.updater.UpdateChunk(ctx, msg.JobID, msg.ChunkIndex, func(c *domain.Chunk) error {
		if err := c.Advance(domain.ChunkStatusAudioReady); err != nil {
			return err
		}
		if msg.ResultURL != "" {
			c.AudioChunkURL.String = msg.ResultURL
			c.AudioChunkURL.Valid = true
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrStaleTransition) {
			return p.chunkStepError(ctx, msg.JobID, msg.ChunkIndex, "mark audio ready", err)
		}
		// A chunk parked exactly at audio_ready means the previous delivery
		// died between the write and the scene start. Republishing the audio
		// message would cycle forever, so fall through and start the scene.
		if chunk == nil || chunk.Status != domain.ChunkStatusAudioReady {
			return p.enqueueNextStage(ctx, chunk)
		}
	}

	operationID, err := p.scenes.StartScene(ctx, providers.SceneRequest{
		Prompt: scenePrompt(chunk),
	})
	if err != nil {
		return p.HandleChunkFailure(ctx, msg.JobID, msg.ChunkIndex, fmt.Errorf("scene generation start failed: %w", err))
	}

	if _, err := p.updater.UpdateChunk(ctx, msg.JobID, msg.ChunkIndex, func(c *domain.Chunk) error {
		if err := c.Advance(domain.ChunkStatusSceneGenerating); err != nil {
			return err
		}
		c.SceneOperationID.String = operationID
		c.SceneOperationID.Valid = true
		return nil
	}); err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return p.chunkStepError(ctx, msg.JobID, msg.ChunkIndex, "mark scene generating", err)
	}

	return p.publisher.PublishJSON(ctx, domain.ChunkStageMessage{
		Type:        domain.MessageTypeChunkStage,
		JobID:       msg.JobID,
		ChunkIndex:  msg.ChunkIndex,
		Stage:       domain.StageScene,
		OperationID: operationID,
	})
}

// handleSceneStage: poll the scene operation, scene_generating → scene_ready,
// then start video generation and move to video_generating.
func (p *Pipeline) handleSceneStage(ctx context.Context, msg domain.ChunkStageMessage) error {
	chunk, err := p.store.GetChunk(ctx, msg.JobID, msg.ChunkIndex)
	if err != nil {
		return err
	}
	if domain.StageRank(chunk.Status) > domain.StageRank(domain.ChunkStatusSceneGenerating) {
		return p.enqueueNextStage(ctx, chunk)
	}

	operationID := msg.OperationID
	if operationID == "" {
		operationID = chunk.SceneOperationID.String
	}
	if operationID == "" {
		return p.HandleChunkFailure(ctx, msg.JobID, msg.ChunkIndex, fmt.Errorf("scene stage without operation id"))
	}

	op, err := providers.PollUntilDone(ctx, p.scenes, operationID, p.config.ScenePollInterval, p.config.ScenePollTimeout)
	if err != nil {
		return p.HandleChunkFailure(ctx, msg.JobID, msg.ChunkIndex, fmt.Errorf("scene generation failed: %w", err))
	}

	chunk, err = p.updater.UpdateChunk(ctx, msg.JobID, msg.ChunkIndex, func(c *domain.Chunk) error {
		if err := c.Advance(domain.ChunkStatusSceneReady); err != nil {
			return err
		}
		c.SceneImageURL.String = op.ResultURL
		c.SceneImageURL.Valid = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrStaleTransition) {
			return p.chunkStepError(ctx, msg.JobID, msg.ChunkIndex, "mark scene ready", err)
		}
		// Parked exactly at scene_ready: the video start never happened.
		if chunk == nil || chunk.Status != domain.ChunkStatusSceneReady {
			return p.enqueueNextStage(ctx, chunk)
		}
	}

	return p.startVideoGeneration(ctx, chunk)
}

// startVideoGeneration starts the image-to-video operation for a chunk whose
// scene image is stored, records the operation id, and enqueues the video
// stage. Also the resume point for a chunk stranded at scene_ready.
func (p *Pipeline) startVideoGeneration(ctx context.Context, chunk *domain.Chunk) error {
	videoOpID, err := p.videos.StartVideo(ctx, providers.VideoRequest{
		ImageURL:   chunk.SceneImageURL.String,
		DurationMs: chunk.DurationMs,
		Fps:        p.config.TargetFps,
	})
	if err != nil {
		return p.HandleChunkFailure(ctx, chunk.JobID, chunk.ChunkIndex, fmt.Errorf("video generation start failed: %w", err))
	}

	if _, err := p.updater.UpdateChunk(ctx, chunk.JobID, chunk.ChunkIndex, func(c *domain.Chunk) error {
		if err := c.Advance(domain.ChunkStatusVideoGenerating); err != nil {
			return err
		}
		c.VideoOperationID.String = videoOpID
		c.VideoOperationID.Valid = true
		return nil
	}); err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return p.chunkStepError(ctx, chunk.JobID, chunk.ChunkIndex, "mark video generating", err)
	}

	return p.publisher.PublishJSON(ctx, domain.ChunkStageMessage{
		Type:        domain.MessageTypeChunkStage,
		JobID:       chunk.JobID,
		ChunkIndex:  chunk.ChunkIndex,
		Stage:       domain.StageVideo,
		OperationID: videoOpID,
	})
}

// handleVideoStage: poll the video operation, normalize the segment to the
// chunk's exact duration and the target frame rate, video_generating →
// video_ready, then re-evaluate job readiness.
func (p *Pipeline) handleVideoStage(ctx context.Context, msg domain.ChunkStageMessage) error {
	chunk, err := p.store.GetChunk(ctx, msg.JobID, msg.ChunkIndex)
	if err != nil {
		return err
	}
	if domain.StageRank(chunk.Status) > domain.StageRank(domain.ChunkStatusVideoGenerating) {
		return p.enqueueNextStage(ctx, chunk)
	}

	operationID := msg.OperationID
	if operationID == "" {
		operationID = chunk.VideoOperationID.String
	}
	if operationID == "" {
		// No operation was ever started (crash between the scene_ready write
		// and the video start); restart from the stored scene image instead
		// of treating the gap as terminal.
		if chunk.Status == domain.ChunkStatusSceneReady && chunk.SceneImageURL.Valid {
			return p.startVideoGeneration(ctx, chunk)
		}
		return p.HandleChunkFailure(ctx, msg.JobID, msg.ChunkIndex, fmt.Errorf("video stage without operation id"))
	}

	op, err := providers.PollUntilDone(ctx, p.videos, operationID, p.config.VideoPollInterval, p.config.VideoPollTimeout)
	if err != nil {
		return p.HandleChunkFailure(ctx, msg.JobID, msg.ChunkIndex, fmt.Errorf("video generation failed: %w", err))
	}

	// Normalization is mandatory before video_ready: generated segments vary
	// slightly in duration and frame rate, and un-normalized segments
	// desynchronize audio and video after stitching.
	normalized, err := p.media.NormalizeSegment(ctx, op.ResultURL,
		blob.VideoSegmentKey(msg.JobID, msg.ChunkIndex), chunk.DurationMs, p.config.TargetFps)
	if err != nil {
		return p.HandleChunkFailure(ctx, msg.JobID, msg.ChunkIndex, fmt.Errorf("segment normalization failed: %w", err))
	}

	if _, err := p.updater.UpdateChunk(ctx, msg.JobID, msg.ChunkIndex, func(c *domain.Chunk) error {
		if err := c.Advance(domain.ChunkStatusVideoReady); err != nil {
			return err
		}
		c.VideoSegmentURL.String = normalized.URL
		c.VideoSegmentURL.Valid = true
		return nil
	}); err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return p.chunkStepError(ctx, msg.JobID, msg.ChunkIndex, "mark video ready", err)
	}

	p.logger.Info("Chunk reached video_ready",
		slog.String("job_id", msg.JobID),
		slog.Int("chunk_index", msg.ChunkIndex),
	)

	return p.EvaluateReadiness(ctx, msg.JobID)
}

// enqueueNextStage re-enqueues the message a chunk's current state implies,
// so a redelivered message resumes the pipeline instead of corrupting it.
func (p *Pipeline) enqueueNextStage(ctx context.Context, chunk *domain.Chunk) error {
	if chunk == nil {
		return nil
	}

	switch chunk.Status {
	case domain.ChunkStatusPending, domain.ChunkStatusAudioReady:
		return p.publisher.PublishJSON(ctx, domain.ChunkStageMessage{
			Type:       domain.MessageTypeChunkStage,
			JobID:      chunk.JobID,
			ChunkIndex: chunk.ChunkIndex,
			Stage:      domain.StageAudio,
			ResultURL:  chunk.AudioChunkURL.String,
		})
	case domain.ChunkStatusSceneGenerating:
		return p.publisher.PublishJSON(ctx, domain.ChunkStageMessage{
			Type:        domain.MessageTypeChunkStage,
			JobID:       chunk.JobID,
			ChunkIndex:  chunk.ChunkIndex,
			Stage:       domain.StageScene,
			OperationID: chunk.SceneOperationID.String,
		})
	case domain.ChunkStatusSceneReady, domain.ChunkStatusVideoGenerating:
		return p.publisher.PublishJSON(ctx, domain.ChunkStageMessage{
			Type:        domain.MessageTypeChunkStage,
			JobID:       chunk.JobID,
			ChunkIndex:  chunk.ChunkIndex,
			Stage:       domain.StageVideo,
			OperationID: chunk.VideoOperationID.String,
		})
	case domain.ChunkStatusVideoReady:
		return p.EvaluateReadiness(ctx, chunk.JobID)
	case domain.ChunkStatusFailed:
		return nil
	default:
		return fmt.Errorf("chunk %d in unknown status %q", chunk.ChunkIndex, chunk.Status)
	}
}

// chunkStepError classifies a failed persistence step: exhausted lock retries
// are transient and requeued, everything else fails the chunk.
func (p *Pipeline) chunkStepError(ctx context.Context, jobID string, chunkIndex int, step string, err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.NewRetryableError(fmt.Errorf("%s: %w", step, err))
	}
	return p.HandleChunkFailure(ctx, jobID, chunkIndex, fmt.Errorf("%s: %w", step, err))
}

// scenePrompt describes one chunk of the song for the image provider.
func scenePrompt(chunk *domain.Chunk) string {
	return fmt.Sprintf(
		"Cinematic music video scene %d, covering %.1fs to %.1fs of the song, widescreen, no text",
		chunk.ChunkIndex+1,
		float64(chunk.StartTimeMs)/1000,
		float64(chunk.EndTimeMs)/1000,
	)
}
