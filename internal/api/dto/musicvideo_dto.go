package dto

type CreateMusicVideoRequest struct {
	ChunkDurationSec int `json:"chunk_duration_sec"`
}

type ListMusicVideosRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type MusicVideoJobDTO struct {
	JobID           string          `json:"job_id"`
	SongID          string          `json:"song_id"`
	JobType         string          `json:"job_type"`
	Status          string          `json:"status"`
	Progress        int             `json:"progress"`
	StitchTriggered bool            `json:"stitch_triggered"`
	TotalDurationMs int64           `json:"total_duration_ms,omitempty"`
	VideoURL        string          `json:"video_url,omitempty"`
	Error           string          `json:"error,omitempty"`
	Chunks          []VideoChunkDTO `json:"chunks,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type VideoChunkDTO struct {
	ChunkIndex  int    `json:"chunk_index"`
	StartTimeMs int64  `json:"start_time_ms"`
	EndTimeMs   int64  `json:"end_time_ms"`
	DurationMs  int64  `json:"duration_ms"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

type ListMusicVideosResponse struct {
	Jobs       []MusicVideoJobDTO `json:"jobs"`
	NextCursor string             `json:"next_cursor,omitempty"`
}
