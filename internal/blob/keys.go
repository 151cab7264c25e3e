// Package blob stores pipeline artifacts in object storage. Key layout and
// cleanup prefixes live together in this package so a layout change cannot
// silently orphan objects from the cleanup sweep.
package blob

import "fmt"

// Top-level prefixes for pipeline artifacts. The retention sweep walks
// exactly these.
const (
	audioChunkRoot   = "audio-chunks/"
	videoSegmentRoot = "video-segments/"
	musicVideoRoot   = "music-videos/"
)

// AudioChunkKey is the object key for one audio slice of a job.
func AudioChunkKey(jobID string, index int) string {
	return fmt.Sprintf("%s%s/%03d.m4a", audioChunkRoot, jobID, index)
}

// AudioChunkPrefix covers every audio chunk of a job.
func AudioChunkPrefix(jobID string) string {
	return audioChunkRoot + jobID + "/"
}

// VideoSegmentKey is the object key for one normalized video segment.
func VideoSegmentKey(jobID string, index int) string {
	return fmt.Sprintf("%s%s/%03d.mp4", videoSegmentRoot, jobID, index)
}

// VideoSegmentPrefix covers every normalized segment of a job.
func VideoSegmentPrefix(jobID string) string {
	return videoSegmentRoot + jobID + "/"
}

// FinalVideoKey is the object key for the stitched output.
func FinalVideoKey(jobID string) string {
	return musicVideoRoot + jobID + "-final.mp4"
}

// FinalVideoPrefix covers the stitched output, including any partial write
// left behind by a failed stitch.
func FinalVideoPrefix(jobID string) string {
	return musicVideoRoot + jobID + "-"
}

// JobPrefixes returns every storage prefix that can hold artifacts for a job,
// in the order cleanup should delete them.
func JobPrefixes(jobID string) []string {
	return []string{
		AudioChunkPrefix(jobID),
		VideoSegmentPrefix(jobID),
		FinalVideoPrefix(jobID),
	}
}

// SweepRoots returns the top-level prefixes the retention sweep scans.
func SweepRoots() []string {
	return []string{audioChunkRoot, videoSegmentRoot, musicVideoRoot}
}
