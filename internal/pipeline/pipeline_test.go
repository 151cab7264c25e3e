package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunereel/tunereel-be/internal/media"
	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
	"github.com/tunereel/tunereel-be/internal/pipeline/store"
	"github.com/tunereel/tunereel-be/internal/providers"
)

// memStore is an in-memory store with the same optimistic-lock semantics as
// the SQL store. It backs both the pipeline's read side and the atomic
// updater's CAS side, so tests run the production retry path.
type memStore struct {
	mu     sync.Mutex
	jobs   map[string]domain.Job
	chunks map[string]map[int]domain.Chunk
}

func newMemStore() *memStore {
	return &memStore{
		jobs:   make(map[string]domain.Job),
		chunks: make(map[string]map[int]domain.Chunk),
	}
}

func (m *memStore) putJob(job domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job
}

func (m *memStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := job
	return &out, nil
}

func (m *memStore) CompareAndSwapJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.jobs[job.JobID]
	if !ok || current.Version != job.Version {
		return domain.ErrVersionConflict
	}
	job.Version++
	job.UpdatedAt = time.Now()
	m.jobs[job.JobID] = *job
	return nil
}

func (m *memStore) GetChunk(ctx context.Context, jobID string, chunkIndex int) (*domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[jobID][chunkIndex]
	if !ok {
		return nil, domain.ErrChunkNotFound
	}
	out := chunk
	return &out, nil
}

func (m *memStore) CompareAndSwapChunk(ctx context.Context, chunk *domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.chunks[chunk.JobID][chunk.ChunkIndex]
	if !ok || current.Version != chunk.Version {
		return domain.ErrVersionConflict
	}
	chunk.Version++
	chunk.UpdatedAt = time.Now()
	m.chunks[chunk.JobID][chunk.ChunkIndex] = *chunk
	return nil
}

func (m *memStore) CreateChunks(ctx context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunk := range chunks {
		if m.chunks[chunk.JobID] == nil {
			m.chunks[chunk.JobID] = make(map[int]domain.Chunk)
		}
		if _, exists := m.chunks[chunk.JobID][chunk.ChunkIndex]; exists {
			continue
		}
		m.chunks[chunk.JobID][chunk.ChunkIndex] = chunk
	}
	return nil
}

func (m *memStore) ListChunks(ctx context.Context, jobID string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIndex := m.chunks[jobID]
	out := make([]domain.Chunk, 0, len(byIndex))
	for i := 0; i < len(byIndex); i++ {
		out = append(out, byIndex[i])
	}
	return out, nil
}

// fakePublisher records published messages as raw JSON.
type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (f *fakePublisher) PublishJSON(ctx context.Context, v any) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakePublisher) drain() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.messages
	f.messages = nil
	return out
}

func (f *fakePublisher) count(msgType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, raw := range f.messages {
		var envelope domain.Envelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Type == msgType {
			n++
		}
	}
	return n
}

// fakeBlobs records prefix deletions.
type fakeBlobs struct {
	mu       sync.Mutex
	prefixes []string
}

func (f *fakeBlobs) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefix)
	return 1, nil
}

// fakeProvider implements both generator interfaces. Operations finish on
// the first poll unless failOps marks them failed.
type fakeProvider struct {
	mu       sync.Mutex
	started  int
	canceled []string
	failOps  map[string]string
	startErr error
}

func (f *fakeProvider) StartScene(ctx context.Context, req providers.SceneRequest) (string, error) {
	return f.start("scene")
}

func (f *fakeProvider) StartVideo(ctx context.Context, req providers.VideoRequest) (string, error) {
	return f.start("video")
}

func (f *fakeProvider) start(kind string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return fmt.Sprintf("op-%s-%d", kind, f.started), nil
}

func (f *fakeProvider) Poll(ctx context.Context, operationID string) (providers.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.failOps[operationID]; ok {
		return providers.Operation{ID: operationID, Done: true, Error: msg}, nil
	}
	return providers.Operation{
		ID:        operationID,
		Done:      true,
		ResultURL: "https://provider.example.com/" + operationID + ".out",
	}, nil
}

func (f *fakeProvider) Cancel(ctx context.Context, operationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, operationID)
	return nil
}

// fakeMedia plans chunks for a fixed probed duration and fabricates URLs for
// every produced artifact.
type fakeMedia struct {
	durationMs int64
	probeErr   error
}

func (f *fakeMedia) ProbeDuration(ctx context.Context, audioURL string) (int64, error) {
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.durationMs, nil
}

func (f *fakeMedia) ChunkAudio(ctx context.Context, audioURL string, keyFor func(index int) string, chunkDurationSec int, totalDurationMs int64) ([]media.AudioChunk, error) {
	spans, err := media.PlanChunks(totalDurationMs, chunkDurationSec)
	if err != nil {
		return nil, err
	}
	chunks := make([]media.AudioChunk, 0, len(spans))
	for _, span := range spans {
		chunks = append(chunks, media.AudioChunk{
			Index:       span.Index,
			URL:         "https://blobs.example.com/" + keyFor(span.Index),
			StartTimeMs: span.StartTimeMs,
			EndTimeMs:   span.EndTimeMs,
			DurationMs:  span.DurationMs,
		})
	}
	return chunks, nil
}

func (f *fakeMedia) NormalizeSegment(ctx context.Context, segmentURL, destKey string, targetDurationMs int64, targetFps int) (media.NormalizedSegment, error) {
	return media.NormalizedSegment{
		URL:        "https://blobs.example.com/" + destKey,
		DurationMs: targetDurationMs,
	}, nil
}

func (f *fakeMedia) Stitch(ctx context.Context, segmentURLs []string, destKey string) (media.StitchedVideo, error) {
	var total int64
	for range segmentURLs {
		total += 5000
	}
	return media.StitchedVideo{
		URL:           "https://blobs.example.com/" + destKey,
		DurationMs:    total,
		FileSizeBytes: 1 << 20,
	}, nil
}

type fixture struct {
	pipeline  *Pipeline
	store     *memStore
	publisher *fakePublisher
	blobs     *fakeBlobs
	scenes    *fakeProvider
	videos    *fakeProvider
	media     *fakeMedia
}

func newFixture(t *testing.T, durationMs int64) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newMemStore()
	updater := store.NewAtomicUpdater(st, store.UpdaterConfig{
		MaxAttempts: 20,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}, logger)

	f := &fixture{
		store:     st,
		publisher: &fakePublisher{},
		blobs:     &fakeBlobs{},
		scenes:    &fakeProvider{},
		videos:    &fakeProvider{},
		media:     &fakeMedia{durationMs: durationMs},
	}
	f.pipeline = New(logger, st, updater, f.publisher, f.blobs, f.media, f.scenes, f.videos, Config{
		TargetFps:         24,
		MaxChunks:         120,
		ScenePollInterval: time.Millisecond,
		ScenePollTimeout:  time.Second,
		VideoPollInterval: time.Millisecond,
		VideoPollTimeout:  time.Second,
	})
	return f
}

func (f *fixture) newJob(jobID string) {
	f.store.putJob(domain.Job{
		JobID:            jobID,
		SongID:           "song-1",
		JobType:          domain.JobTypeMusicVideo,
		Status:           domain.JobStatusPending,
		AudioURL:         "https://songs.example.com/song-1.mp3",
		ChunkDurationSec: 5,
	})
}

// drive pumps published messages back through the pipeline until the queue
// drains, the way the worker pool would.
func (f *fixture) drive(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		batch := f.publisher.drain()
		if len(batch) == 0 {
			return
		}
		for _, raw := range batch {
			var envelope domain.Envelope
			require.NoError(t, json.Unmarshal(raw, &envelope))

			switch envelope.Type {
			case domain.MessageTypeChunkStage:
				var msg domain.ChunkStageMessage
				require.NoError(t, json.Unmarshal(raw, &msg))
				require.NoError(t, f.pipeline.HandleChunkStage(ctx, msg))
			case domain.MessageTypeStitch:
				var msg domain.StitchMessage
				require.NoError(t, json.Unmarshal(raw, &msg))
				require.NoError(t, f.pipeline.HandleStitch(ctx, msg))
			default:
				t.Fatalf("unexpected message type %q", envelope.Type)
			}
		}
	}
	t.Fatal("message pump did not drain")
}

func TestHandleGenerate_PlansAndDispatchesChunks(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	err := f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	})
	require.NoError(t, err)

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, domain.ProgressChunked, job.Progress)
	assert.Equal(t, int64(12_000), job.TotalDurationMs)

	chunks, err := f.store.ListChunks(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// ceil(12000/5000) = 3 chunks, contiguous, last trimmed to 2000ms.
	wantSpans := []struct{ start, end int64 }{
		{0, 5000}, {5000, 10_000}, {10_000, 12_000},
	}
	for i, want := range wantSpans {
		assert.Equal(t, i, chunks[i].ChunkIndex)
		assert.Equal(t, want.start, chunks[i].StartTimeMs)
		assert.Equal(t, want.end, chunks[i].EndTimeMs)
		assert.Equal(t, want.end-want.start, chunks[i].DurationMs)
		assert.Equal(t, domain.ChunkStatusPending, chunks[i].Status)
		assert.True(t, chunks[i].AudioChunkURL.Valid)
	}

	assert.Equal(t, 3, f.publisher.count(domain.MessageTypeChunkStage))
}

func TestHandleGenerate_RejectsOutOfRangeDurations(t *testing.T) {
	tests := []struct {
		name       string
		durationMs int64
	}{
		{name: "too short", durationMs: 3_000},
		{name: "too long", durationMs: 11 * 60 * 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.durationMs)
			f.newJob("job-1")

			err := f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
				Type:  domain.MessageTypeGenerate,
				JobID: "job-1",
			})
			require.NoError(t, err)

			job, err := f.store.GetJob(context.Background(), "job-1")
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, job.Status)
			assert.True(t, job.ErrorMessage.Valid)

			chunks, err := f.store.ListChunks(context.Background(), "job-1")
			require.NoError(t, err)
			assert.Empty(t, chunks)
		})
	}
}

func TestHandleGenerate_TerminalJobIsNoOp(t *testing.T) {
	f := newFixture(t, 12_000)
	f.store.putJob(domain.Job{
		JobID:  "job-1",
		Status: domain.JobStatusFailed,
	})

	err := f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	})
	require.NoError(t, err)
	assert.Empty(t, f.publisher.drain())
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	require.NoError(t, f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	}))
	f.drive(t)

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, domain.ProgressDone, job.Progress)
	assert.True(t, job.StitchTriggered)
	assert.True(t, job.VideoURL.Valid)
	assert.Contains(t, job.VideoURL.String, "music-videos/job-1-final.mp4")

	chunks, err := f.store.ListChunks(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i := range chunks {
		assert.Equal(t, domain.ChunkStatusVideoReady, chunks[i].Status)
		assert.True(t, chunks[i].VideoSegmentURL.Valid)
	}

	manifest, err := BuildManifest(job, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, manifest.SegmentCount)
}

func TestHandleChunkStage_StaleMessageResumes(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	require.NoError(t, f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	}))
	f.drive(t)

	// All chunks are video_ready; a redelivered audio-stage message must not
	// rewind anything, only re-evaluate readiness.
	before, err := f.store.ListChunks(context.Background(), "job-1")
	require.NoError(t, err)

	err = f.pipeline.HandleChunkStage(context.Background(), domain.ChunkStageMessage{
		Type:       domain.MessageTypeChunkStage,
		JobID:      "job-1",
		ChunkIndex: 0,
		Stage:      domain.StageAudio,
	})
	require.NoError(t, err)

	after, err := f.store.ListChunks(context.Background(), "job-1")
	require.NoError(t, err)
	for i := range before {
		assert.Equal(t, before[i].Status, after[i].Status)
		assert.Equal(t, before[i].VideoSegmentURL, after[i].VideoSegmentURL)
	}

	// The job stays completed and no second stitch is enqueued.
	assert.Equal(t, 0, f.publisher.count(domain.MessageTypeStitch))
}

func TestHandleChunkStage_AudioReadyCrashResumes(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	require.NoError(t, f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	}))
	f.publisher.drain()

	// Park chunk 0 at audio_ready, as if the worker died after the write but
	// before starting scene generation. The broker then redelivers the audio
	// message.
	_, err := f.pipeline.updater.UpdateChunk(context.Background(), "job-1", 0, func(c *domain.Chunk) error {
		return c.Advance(domain.ChunkStatusAudioReady)
	})
	require.NoError(t, err)

	err = f.pipeline.HandleChunkStage(context.Background(), domain.ChunkStageMessage{
		Type:       domain.MessageTypeChunkStage,
		JobID:      "job-1",
		ChunkIndex: 0,
		Stage:      domain.StageAudio,
	})
	require.NoError(t, err)

	// One delivery must make progress: the scene started and the chunk moved
	// on, rather than the same audio message being republished forever.
	chunk, err := f.store.GetChunk(context.Background(), "job-1", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusSceneGenerating, chunk.Status)
	assert.True(t, chunk.SceneOperationID.Valid)
	assert.Equal(t, 1, f.scenes.started)

	// The rest of the pipeline completes the chunk from here.
	f.drive(t)
	chunk, err = f.store.GetChunk(context.Background(), "job-1", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusVideoReady, chunk.Status)
}

func TestHandleChunkStage_SceneReadyCrashResumes(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	require.NoError(t, f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	}))
	f.publisher.drain()

	// Park chunk 0 at scene_ready with the image stored but no video
	// operation, as if the worker died before StartVideo.
	_, err := f.pipeline.updater.UpdateChunk(context.Background(), "job-1", 0, func(c *domain.Chunk) error {
		c.Status = domain.ChunkStatusSceneReady
		c.SceneImageURL = sql.NullString{String: "https://provider.example.com/scene-0.png", Valid: true}
		return nil
	})
	require.NoError(t, err)

	// The redelivered video-stage message carries no operation id; it must
	// restart video generation from the stored scene image, not fail the job.
	err = f.pipeline.HandleChunkStage(context.Background(), domain.ChunkStageMessage{
		Type:       domain.MessageTypeChunkStage,
		JobID:      "job-1",
		ChunkIndex: 0,
		Stage:      domain.StageVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.videos.started)

	f.drive(t)

	chunk, err := f.store.GetChunk(context.Background(), "job-1", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusVideoReady, chunk.Status)

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.NotEqual(t, domain.JobStatusFailed, job.Status)
	assert.False(t, job.ErrorMessage.Valid)
}

func TestEvaluateReadiness_TriggersStitchExactlyOnce(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	chunks := make([]domain.Chunk, 3)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			JobID:           "job-1",
			ChunkIndex:      i,
			StartTimeMs:     int64(i) * 4000,
			EndTimeMs:       int64(i+1) * 4000,
			DurationMs:      4000,
			Status:          domain.ChunkStatusVideoReady,
			VideoSegmentURL: sql.NullString{String: fmt.Sprintf("https://blobs.example.com/video-segments/job-1/%03d.mp4", i), Valid: true},
		}
	}
	require.NoError(t, f.store.CreateChunks(context.Background(), chunks))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.pipeline.EvaluateReadiness(context.Background(), "job-1"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.publisher.count(domain.MessageTypeStitch))

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, job.StitchTriggered)
	assert.Equal(t, domain.ProgressStitching, job.Progress)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
}

func TestEvaluateReadiness_PartialProgressNoStitch(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	chunks := []domain.Chunk{
		{JobID: "job-1", ChunkIndex: 0, Status: domain.ChunkStatusVideoReady},
		{JobID: "job-1", ChunkIndex: 1, Status: domain.ChunkStatusSceneGenerating},
		{JobID: "job-1", ChunkIndex: 2, Status: domain.ChunkStatusPending},
	}
	require.NoError(t, f.store.CreateChunks(context.Background(), chunks))

	require.NoError(t, f.pipeline.EvaluateReadiness(context.Background(), "job-1"))

	assert.Equal(t, 0, f.publisher.count(domain.MessageTypeStitch))

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, job.StitchTriggered)
	assert.Greater(t, job.Progress, 0)
	assert.Less(t, job.Progress, domain.ProgressStitching)
}

func TestEvaluateReadiness_FailedChunkFailsJob(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	chunks := []domain.Chunk{
		{JobID: "job-1", ChunkIndex: 0, Status: domain.ChunkStatusVideoReady},
		{JobID: "job-1", ChunkIndex: 1, Status: domain.ChunkStatusFailed,
			ErrorMessage: sql.NullString{String: "video generation failed", Valid: true}},
		{JobID: "job-1", ChunkIndex: 2, Status: domain.ChunkStatusVideoReady},
	}
	require.NoError(t, f.store.CreateChunks(context.Background(), chunks))

	require.NoError(t, f.pipeline.EvaluateReadiness(context.Background(), "job-1"))

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage.String, "chunk 1")
	assert.False(t, job.StitchTriggered)
	assert.Equal(t, 0, f.publisher.count(domain.MessageTypeStitch))
}

func TestHandleChunkFailure_PropagatesAndCleansUp(t *testing.T) {
	f := newFixture(t, 25_000)
	f.newJob("job-1")

	require.NoError(t, f.pipeline.HandleGenerate(context.Background(), domain.GenerateMessage{
		Type:  domain.MessageTypeGenerate,
		JobID: "job-1",
	}))
	f.publisher.drain()

	// Move chunk 3 into scene_generating so cleanup has an operation to
	// cancel.
	_, err := f.pipeline.updater.UpdateChunk(context.Background(), "job-1", 3, func(c *domain.Chunk) error {
		if err := c.Advance(domain.ChunkStatusSceneGenerating); err != nil {
			return err
		}
		c.SceneOperationID = sql.NullString{String: "op-scene-3", Valid: true}
		return nil
	})
	require.NoError(t, err)

	err = f.pipeline.HandleChunkFailure(context.Background(), "job-1", 3,
		fmt.Errorf("scene generation failed: provider 500"))
	require.NoError(t, err)

	chunk, err := f.store.GetChunk(context.Background(), "job-1", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ChunkStatusFailed, chunk.Status)
	assert.Contains(t, chunk.ErrorMessage.String, "provider 500")

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage.String, "chunk 3")

	// Cleanup canceled the in-flight operation and swept both prefixes.
	assert.Contains(t, f.scenes.canceled, "op-scene-3")
	require.Len(t, f.blobs.prefixes, 3)
	for _, prefix := range f.blobs.prefixes {
		assert.Contains(t, prefix, "job-1")
	}

	// Other chunks are untouched.
	other, err := f.store.GetChunk(context.Background(), "job-1", 0)
	require.NoError(t, err)
	assert.NotEqual(t, domain.ChunkStatusFailed, other.Status)
}

func TestHandleChunkFailure_AlreadyFailedJobStaysFailed(t *testing.T) {
	f := newFixture(t, 12_000)
	f.store.putJob(domain.Job{
		JobID:        "job-1",
		Status:       domain.JobStatusFailed,
		ErrorMessage: sql.NullString{String: "chunk 0: first failure", Valid: true},
	})
	require.NoError(t, f.store.CreateChunks(context.Background(), []domain.Chunk{
		{JobID: "job-1", ChunkIndex: 1, Status: domain.ChunkStatusPending},
	}))

	err := f.pipeline.HandleChunkFailure(context.Background(), "job-1", 1,
		fmt.Errorf("second failure"))
	require.NoError(t, err)

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	// First failure reason wins.
	assert.Equal(t, "chunk 0: first failure", job.ErrorMessage.String)
}

func TestHandleStitch(t *testing.T) {
	f := newFixture(t, 12_000)

	newReadyJob := func(jobID string) {
		f.store.putJob(domain.Job{
			JobID:           jobID,
			Status:          domain.JobStatusProcessing,
			Progress:        domain.ProgressStitching,
			StitchTriggered: true,
			TotalDurationMs: 12_000,
		})
		chunks := make([]domain.Chunk, 3)
		for i := range chunks {
			chunks[i] = domain.Chunk{
				JobID:           jobID,
				ChunkIndex:      i,
				Status:          domain.ChunkStatusVideoReady,
				VideoSegmentURL: sql.NullString{String: fmt.Sprintf("https://blobs.example.com/%s/%03d.mp4", jobID, i), Valid: true},
			}
		}
		require.NoError(t, f.store.CreateChunks(context.Background(), chunks))
	}

	t.Run("completes the job", func(t *testing.T) {
		newReadyJob("job-1")

		err := f.pipeline.HandleStitch(context.Background(), domain.StitchMessage{
			Type:  domain.MessageTypeStitch,
			JobID: "job-1",
		})
		require.NoError(t, err)

		job, err := f.store.GetJob(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, job.Status)
		assert.Equal(t, domain.ProgressDone, job.Progress)
		assert.True(t, job.VideoURL.Valid)
		assert.True(t, job.VideoDurationMs.Valid)
		assert.True(t, job.FileSizeBytes.Valid)
	})

	t.Run("redelivery after completion is a no-op", func(t *testing.T) {
		err := f.pipeline.HandleStitch(context.Background(), domain.StitchMessage{
			Type:  domain.MessageTypeStitch,
			JobID: "job-1",
		})
		require.NoError(t, err)
	})

	t.Run("refuses a job that is not all video_ready", func(t *testing.T) {
		newReadyJob("job-2")
		_, err := f.pipeline.updater.UpdateChunk(context.Background(), "job-2", 1, func(c *domain.Chunk) error {
			c.Status = domain.ChunkStatusSceneReady
			c.VideoSegmentURL = sql.NullString{}
			return nil
		})
		require.NoError(t, err)

		err = f.pipeline.HandleStitch(context.Background(), domain.StitchMessage{
			Type:  domain.MessageTypeStitch,
			JobID: "job-2",
		})
		require.ErrorIs(t, err, domain.ErrJobNotReady)
	})
}

func TestEvaluateReadiness_StitchEnqueueFailureIsRecorded(t *testing.T) {
	f := newFixture(t, 12_000)
	f.newJob("job-1")

	chunks := make([]domain.Chunk, 2)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			JobID:           "job-1",
			ChunkIndex:      i,
			Status:          domain.ChunkStatusVideoReady,
			VideoSegmentURL: sql.NullString{String: "https://blobs.example.com/seg.mp4", Valid: true},
		}
	}
	require.NoError(t, f.store.CreateChunks(context.Background(), chunks))

	f.publisher.err = fmt.Errorf("broker unavailable")

	// The publisher failing must not look like success; the update path does
	// not go through PublishJSON, so the stall lands on the job row.
	err := f.pipeline.EvaluateReadiness(context.Background(), "job-1")
	require.Error(t, err)

	job, getErr := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, getErr)
	assert.True(t, job.StitchTriggered)
	assert.True(t, strings.Contains(job.ErrorMessage.String, "stitch enqueue failed"))
}
