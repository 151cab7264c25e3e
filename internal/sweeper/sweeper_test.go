package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tunereel/tunereel-be/internal/blob"
)

// fakeLister serves canned stale objects per prefix and records deletions.
type fakeLister struct {
	mu        sync.Mutex
	stale     map[string][]blob.Object
	deleted   []string
	deleteErr map[string]error
}

func (f *fakeLister) ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]blob.Object, error) {
	return f.stale[prefix], nil
}

func (f *fakeLister) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepOnce_DeletesStaleObjectsUnderEveryRoot(t *testing.T) {
	lister := &fakeLister{stale: map[string][]blob.Object{
		"audio-chunks/": {
			{Key: "audio-chunks/job-old/000.m4a"},
			{Key: "audio-chunks/job-old/001.m4a"},
		},
		"video-segments/": {
			{Key: "video-segments/job-old/000.mp4"},
		},
		"music-videos/": {
			{Key: "music-videos/job-old-final.mp4"},
		},
	}}

	s := New(lister, Config{Retention: 7 * 24 * time.Hour}, testLogger())
	s.SweepOnce(context.Background())

	assert.ElementsMatch(t, []string{
		"audio-chunks/job-old/000.m4a",
		"audio-chunks/job-old/001.m4a",
		"video-segments/job-old/000.mp4",
		"music-videos/job-old-final.mp4",
	}, lister.deleted)
}

func TestSweepOnce_SkipsFailedDeletes(t *testing.T) {
	lister := &fakeLister{
		stale: map[string][]blob.Object{
			"audio-chunks/": {
				{Key: "audio-chunks/a"},
				{Key: "audio-chunks/b"},
			},
		},
		deleteErr: map[string]error{
			"audio-chunks/a": errors.New("access denied"),
		},
	}

	s := New(lister, Config{Retention: time.Hour}, testLogger())
	s.SweepOnce(context.Background())

	// The failing key is skipped, the rest of the pass continues.
	assert.Equal(t, []string{"audio-chunks/b"}, lister.deleted)
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeLister{}, Config{}, testLogger())
	assert.Equal(t, time.Hour, s.config.Interval)
	assert.Equal(t, 7*24*time.Hour, s.config.Retention)
}
