package domain

import (
	"database/sql"
	"time"
)

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobTypeMusicVideo is the only job type the pipeline currently handles.
const JobTypeMusicVideo = "music-video"

// Progress checkpoints reported on the job row. These are informational;
// stitch coordination uses the StitchTriggered flag, not the number.
const (
	ProgressChunked   = 10
	ProgressStitching = 90
	ProgressDone      = 100
)

// Job is one full music-video generation request. Rows are mutated only
// through version-gated updates; Version is the optimistic-lock token.
type Job struct {
	JobID            string         `db:"job_id"`
	SongID           string         `db:"song_id"`
	JobType          string         `db:"job_type"`
	Status           string         `db:"status"`
	Progress         int            `db:"progress"`
	StitchTriggered  bool           `db:"stitch_triggered"`
	Version          int64          `db:"version"`
	AudioURL         string         `db:"audio_url"`
	ChunkDurationSec int            `db:"chunk_duration_sec"`
	TotalDurationMs  int64          `db:"total_duration_ms"`
	VideoURL         sql.NullString `db:"video_url"`
	VideoDurationMs  sql.NullInt64  `db:"video_duration_ms"`
	FileSizeBytes    sql.NullInt64  `db:"file_size_bytes"`
	ErrorMessage     sql.NullString `db:"error_message"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// IsTerminal reports whether the job can no longer change state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// SetError records a failure reason on the job.
func (j *Job) SetError(msg string) {
	j.ErrorMessage = sql.NullString{String: msg, Valid: msg != ""}
}
