package pipeline

import (
	"fmt"
	"sort"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// BuildManifest assembles the client-facing manifest from a completed job and
// its chunks. Segment order is restored from chunk index, not arrival order,
// and the chunk set is validated as gapless before anything is emitted.
func BuildManifest(job *domain.Job, chunks []domain.Chunk) (*domain.Manifest, error) {
	if job.Status != domain.JobStatusCompleted {
		return nil, fmt.Errorf("job %s is %s, manifest requires a completed job", job.JobID, job.Status)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("job %s has no chunks", job.JobID)
	}

	ordered := make([]domain.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ChunkIndex < ordered[j].ChunkIndex
	})

	segments := make([]domain.ManifestSegment, 0, len(ordered))
	for i := range ordered {
		chunk := &ordered[i]
		if chunk.ChunkIndex != i {
			return nil, fmt.Errorf("chunk set has a gap: expected index %d, got %d", i, chunk.ChunkIndex)
		}
		if i > 0 && chunk.StartTimeMs != ordered[i-1].EndTimeMs {
			return nil, fmt.Errorf("chunk %d is not contiguous: starts at %dms, previous ends at %dms",
				chunk.ChunkIndex, chunk.StartTimeMs, ordered[i-1].EndTimeMs)
		}
		if !chunk.VideoSegmentURL.Valid || chunk.VideoSegmentURL.String == "" {
			return nil, fmt.Errorf("chunk %d has no video segment", chunk.ChunkIndex)
		}
		segments = append(segments, domain.ManifestSegment{
			Index:       chunk.ChunkIndex,
			URL:         chunk.VideoSegmentURL.String,
			DurationMs:  chunk.DurationMs,
			StartTimeMs: chunk.StartTimeMs,
			EndTimeMs:   chunk.EndTimeMs,
		})
	}

	if last := &ordered[len(ordered)-1]; last.EndTimeMs != job.TotalDurationMs {
		return nil, fmt.Errorf("chunk set does not cover the song: last chunk ends at %dms of %dms",
			last.EndTimeMs, job.TotalDurationMs)
	}

	var audioURL *string
	if job.AudioURL != "" {
		url := job.AudioURL
		audioURL = &url
	}

	// The video provider cannot preserve externally supplied audio, so the
	// stitched video is silent and the player carries the audio track.
	return &domain.Manifest{
		Version:         domain.ManifestVersion,
		JobID:           job.JobID,
		TotalDurationMs: job.TotalDurationMs,
		SegmentCount:    len(segments),
		AudioURL:        audioURL,
		AudioSyncMode:   domain.AudioSyncModeClient,
		Segments:        segments,
	}, nil
}
