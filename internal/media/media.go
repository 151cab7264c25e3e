// Package media defines the transform collaborator the pipeline uses for
// byte-level audio chunking, segment normalization, and stitching. The
// interface is implementation-agnostic; the default backend shells out to
// ffmpeg/ffprobe.
package media

import (
	"context"
	"fmt"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// Source duration bounds enforced before any pipeline work starts.
const (
	MinSourceDurationMs = 5 * 1000
	MaxSourceDurationMs = 10 * 60 * 1000
)

// AudioChunk is one uploaded slice of the source audio.
type AudioChunk struct {
	Index       int
	URL         string
	StartTimeMs int64
	EndTimeMs   int64
	DurationMs  int64
}

// NormalizedSegment is a video segment forced to an exact duration and a
// fixed frame rate.
type NormalizedSegment struct {
	URL        string
	DurationMs int64
}

// StitchedVideo is the concatenated output of all normalized segments.
type StitchedVideo struct {
	URL           string
	DurationMs    int64
	FileSizeBytes int64
}

// Transformer is the media-transform contract. Implementations are swappable;
// the pipeline only relies on these four operations.
type Transformer interface {
	// ProbeDuration returns the source duration in milliseconds, failing
	// explicitly (never returning zero) when the duration is undetectable.
	ProbeDuration(ctx context.Context, audioURL string) (int64, error)

	// ChunkAudio slices the source into fixed-duration chunks uploaded under
	// the keys keyFor yields per chunk index, returning them ordered by index.
	ChunkAudio(ctx context.Context, audioURL string, keyFor func(index int) string, chunkDurationSec int, totalDurationMs int64) ([]AudioChunk, error)

	// NormalizeSegment re-encodes a generated segment to exactly
	// targetDurationMs at targetFps and stores it under destKey.
	NormalizeSegment(ctx context.Context, segmentURL, destKey string, targetDurationMs int64, targetFps int) (NormalizedSegment, error)

	// Stitch concatenates the given segments, in order, into one file stored
	// under destKey.
	Stitch(ctx context.Context, segmentURLs []string, destKey string) (StitchedVideo, error)
}

// ChunkSpan is one entry of a chunk plan.
type ChunkSpan struct {
	Index       int
	StartTimeMs int64
	EndTimeMs   int64
	DurationMs  int64
}

// PlanChunks computes the exact partition of a source duration into
// fixed-duration chunks: ceil(D/C) chunks, contiguous, the last one trimmed
// so its end lands exactly on the total duration.
func PlanChunks(totalDurationMs int64, chunkDurationSec int) ([]ChunkSpan, error) {
	if totalDurationMs <= 0 {
		return nil, fmt.Errorf("total duration must be positive, got %dms", totalDurationMs)
	}
	if chunkDurationSec <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %ds", chunkDurationSec)
	}

	chunkMs := int64(chunkDurationSec) * 1000
	count := int((totalDurationMs + chunkMs - 1) / chunkMs)

	spans := make([]ChunkSpan, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * chunkMs
		end := start + chunkMs
		if end > totalDurationMs {
			end = totalDurationMs
		}
		spans = append(spans, ChunkSpan{
			Index:       i,
			StartTimeMs: start,
			EndTimeMs:   end,
			DurationMs:  end - start,
		})
	}

	return spans, nil
}

// ValidateSourceDuration rejects out-of-range source durations.
func ValidateSourceDuration(durationMs int64) error {
	if durationMs < MinSourceDurationMs {
		return fmt.Errorf("%w: %dms, minimum %dms", domain.ErrAudioTooShort, durationMs, MinSourceDurationMs)
	}
	if durationMs > MaxSourceDurationMs {
		return fmt.Errorf("%w: %dms, maximum %dms", domain.ErrAudioTooLong, durationMs, MaxSourceDurationMs)
	}
	return nil
}
