package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// handleMessage parses one queue message and routes it to the pipeline step
// it names. Every step is idempotent, so a redelivered message re-applies its
// transition as a no-op rather than corrupting state.
func (w *Worker) handleMessage(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.messageTimeout)
	defer cancel()

	var envelope domain.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}

	switch envelope.Type {
	case domain.MessageTypeGenerate:
		var msg domain.GenerateMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
		}
		if err := validateJobID(msg.JobID); err != nil {
			return err
		}
		w.logger.Info("Handling generate message",
			slog.String("job_id", msg.JobID),
		)
		return w.pipeline.HandleGenerate(ctx, msg)

	case domain.MessageTypeChunkStage:
		var msg domain.ChunkStageMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
		}
		if err := validateJobID(msg.JobID); err != nil {
			return err
		}
		if msg.ChunkIndex < 0 {
			return fmt.Errorf("%w: negative chunk index %d", domain.ErrInvalidMessage, msg.ChunkIndex)
		}
		w.logger.Info("Handling chunk stage message",
			slog.String("job_id", msg.JobID),
			slog.Int("chunk_index", msg.ChunkIndex),
			slog.String("stage", msg.Stage),
		)
		return w.pipeline.HandleChunkStage(ctx, msg)

	case domain.MessageTypeStitch:
		var msg domain.StitchMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
		}
		if err := validateJobID(msg.JobID); err != nil {
			return err
		}
		w.logger.Info("Handling stitch message",
			slog.String("job_id", msg.JobID),
		)
		return w.pipeline.HandleStitch(ctx, msg)

	default:
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidMessage, envelope.Type)
	}
}

func validateJobID(jobID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return fmt.Errorf("%w: job id %q is not a UUID", domain.ErrInvalidMessage, jobID)
	}
	return nil
}
