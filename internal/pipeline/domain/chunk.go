package domain

import (
	"database/sql"
	"fmt"
	"time"
)

// Chunk status constants. The state machine is forward-only: a chunk moves
// strictly down this list and never back, and failed is terminal.
const (
	ChunkStatusPending         = "pending"
	ChunkStatusAudioReady      = "audio_ready"
	ChunkStatusSceneGenerating = "scene_generating"
	ChunkStatusSceneReady      = "scene_ready"
	ChunkStatusVideoGenerating = "video_generating"
	ChunkStatusVideoReady      = "video_ready"
	ChunkStatusFailed          = "failed"
)

// stageRank orders chunk statuses for forward-only enforcement. failed is
// ranked above everything so no transition can leave it.
var stageRank = map[string]int{
	ChunkStatusPending:         0,
	ChunkStatusAudioReady:      1,
	ChunkStatusSceneGenerating: 2,
	ChunkStatusSceneReady:      3,
	ChunkStatusVideoGenerating: 4,
	ChunkStatusVideoReady:      5,
	ChunkStatusFailed:          6,
}

// StageRank returns the position of a chunk status in the forward-only
// ordering, or -1 for an unknown status.
func StageRank(status string) int {
	rank, ok := stageRank[status]
	if !ok {
		return -1
	}
	return rank
}

// Chunk is one fixed-duration slice of the source audio plus its generated
// video segment. Chunks of a job are zero-based, contiguous, and exactly
// partition the parent audio duration.
type Chunk struct {
	JobID            string         `db:"job_id"`
	ChunkIndex       int            `db:"chunk_index"`
	StartTimeMs      int64          `db:"start_time_ms"`
	EndTimeMs        int64          `db:"end_time_ms"`
	DurationMs       int64          `db:"duration_ms"`
	Status           string         `db:"status"`
	Version          int64          `db:"version"`
	AudioChunkURL    sql.NullString `db:"audio_chunk_url"`
	SceneImageURL    sql.NullString `db:"scene_image_url"`
	VideoSegmentURL  sql.NullString `db:"video_segment_url"`
	SceneOperationID sql.NullString `db:"scene_operation_id"`
	VideoOperationID sql.NullString `db:"video_operation_id"`
	ErrorMessage     sql.NullString `db:"error_message"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// Advance moves the chunk to the given status. It returns ErrStaleTransition
// when the chunk is already at or past that status, which lets redelivered
// queue messages re-apply a transition as a no-op.
func (c *Chunk) Advance(status string) error {
	next := StageRank(status)
	if next < 0 {
		return fmt.Errorf("unknown chunk status %q", status)
	}
	if c.Status == ChunkStatusFailed {
		return fmt.Errorf("%w: chunk %d is failed", ErrStaleTransition, c.ChunkIndex)
	}
	if next <= StageRank(c.Status) {
		return fmt.Errorf("%w: chunk %d already %s, refusing %s",
			ErrStaleTransition, c.ChunkIndex, c.Status, status)
	}
	c.Status = status
	return nil
}

// Fail marks the chunk terminally failed with the given reason.
func (c *Chunk) Fail(msg string) {
	c.Status = ChunkStatusFailed
	c.ErrorMessage = sql.NullString{String: msg, Valid: msg != ""}
}
