package domain

// Queue message types consumed and produced by the pipeline.
const (
	MessageTypeGenerate   = "music-video-generate"
	MessageTypeChunkStage = "chunk-stage-complete"
	MessageTypeStitch     = "music-video-stitch"
)

// Chunk stages carried on chunk-stage-complete messages.
const (
	StageAudio = "audio"
	StageScene = "scene"
	StageVideo = "video"
)

// Envelope carries just enough of a queue message to dispatch on its type.
type Envelope struct {
	Type string `json:"type"`
}

// GenerateMessage kicks off chunking for a freshly created job.
type GenerateMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// ChunkStageMessage reports one completed sub-task for one chunk. ResultURL
// is set for stages that produced an artifact, OperationID for stages that
// started a provider operation still to be polled.
type ChunkStageMessage struct {
	Type        string `json:"type"`
	JobID       string `json:"jobId"`
	ChunkIndex  int    `json:"chunkIndex"`
	Stage       string `json:"stage"`
	ResultURL   string `json:"resultUrl,omitempty"`
	OperationID string `json:"operationId,omitempty"`
}

// StitchMessage asks the stitch worker to assemble the final video.
type StitchMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}

// Manifest is the client-facing description of the stitched output. Segments
// are strictly ordered by index; with AudioSyncModeClient the stitched video
// is silent and the player must run the audio track alongside it,
// repositioning the audio whenever drift exceeds its threshold.
type Manifest struct {
	Version         int               `json:"version"`
	JobID           string            `json:"jobId"`
	TotalDurationMs int64             `json:"totalDurationMs"`
	SegmentCount    int               `json:"segmentCount"`
	AudioURL        *string           `json:"audioUrl"`
	AudioSyncMode   string            `json:"audioSyncMode"`
	Segments        []ManifestSegment `json:"segments"`
}

// ManifestSegment is one playable entry in the manifest.
type ManifestSegment struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	DurationMs  int64  `json:"durationMs"`
	StartTimeMs int64  `json:"startTimeMs"`
	EndTimeMs   int64  `json:"endTimeMs"`
}

// Audio sync modes.
const (
	AudioSyncModeClient   = "client"
	AudioSyncModeEmbedded = "embedded"
)

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1
