package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "audio-chunks/job-1/000.m4a", AudioChunkKey("job-1", 0))
	assert.Equal(t, "audio-chunks/job-1/042.m4a", AudioChunkKey("job-1", 42))
	assert.Equal(t, "video-segments/job-1/007.mp4", VideoSegmentKey("job-1", 7))
	assert.Equal(t, "music-videos/job-1-final.mp4", FinalVideoKey("job-1"))
}

func TestJobPrefixesCoverEveryKey(t *testing.T) {
	// Every key the pipeline can write for a job must fall under one of the
	// job's cleanup prefixes, or failed-job cleanup leaks objects.
	keys := []string{
		AudioChunkKey("job-1", 0),
		AudioChunkKey("job-1", 119),
		VideoSegmentKey("job-1", 0),
		VideoSegmentKey("job-1", 119),
		FinalVideoKey("job-1"),
	}

	prefixes := JobPrefixes("job-1")
	for _, key := range keys {
		covered := false
		for _, prefix := range prefixes {
			if strings.HasPrefix(key, prefix) {
				covered = true
				break
			}
		}
		assert.True(t, covered, "key %s not covered by any cleanup prefix", key)
	}
}

func TestJobPrefixesDoNotCrossJobs(t *testing.T) {
	other := []string{
		AudioChunkKey("job-10", 0),
		VideoSegmentKey("job-10", 0),
		FinalVideoKey("job-10"),
	}

	for _, prefix := range JobPrefixes("job-1") {
		for _, key := range other {
			assert.False(t, strings.HasPrefix(key, prefix),
				"prefix %s matches foreign key %s", prefix, key)
		}
	}
}

func TestSweepRootsCoverJobPrefixes(t *testing.T) {
	roots := SweepRoots()
	for _, prefix := range JobPrefixes("job-1") {
		covered := false
		for _, root := range roots {
			if strings.HasPrefix(prefix, root) {
				covered = true
				break
			}
		}
		assert.True(t, covered, "prefix %s not under any sweep root", prefix)
	}
}
