package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Uploader stores produced files in object storage and returns their URL.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// FFmpegConfig holds ffmpeg transformer configuration
type FFmpegConfig struct {
	FFmpegBin        string
	FFprobeBin       string
	WorkDir          string
	ProbeTimeout     time.Duration
	ChunkTimeout     time.Duration
	NormalizeTimeout time.Duration
	StitchTimeout    time.Duration
	UploadParallel   int
}

// FFmpeg is a Transformer backed by the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	config   *FFmpegConfig
	uploader Uploader
	logger   *slog.Logger
}

// NewFFmpeg creates an ffmpeg-backed transformer.
func NewFFmpeg(config *FFmpegConfig, uploader Uploader, logger *slog.Logger) *FFmpeg {
	if config.FFmpegBin == "" {
		config.FFmpegBin = "ffmpeg"
	}
	if config.FFprobeBin == "" {
		config.FFprobeBin = "ffprobe"
	}
	if config.UploadParallel <= 0 {
		config.UploadParallel = 4
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 2 * time.Minute
	}
	if config.ChunkTimeout <= 0 {
		config.ChunkTimeout = 2 * time.Minute
	}
	if config.NormalizeTimeout <= 0 {
		config.NormalizeTimeout = 2 * time.Minute
	}
	if config.StitchTimeout <= 0 {
		config.StitchTimeout = 5 * time.Minute
	}
	return &FFmpeg{config: config, uploader: uploader, logger: logger}
}

// ProbeDuration reads the source duration via ffprobe. A source whose
// duration cannot be determined is an explicit error, never zero.
func (f *FFmpeg) ProbeDuration(ctx context.Context, audioURL string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.ProbeTimeout)
	defer cancel()

	out, err := f.run(ctx, f.config.FFprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		audioURL,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", audioURL, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("undetectable duration for %s: %q", audioURL, strings.TrimSpace(out))
	}

	return int64(seconds * 1000), nil
}

// ChunkAudio slices the source into fixed-duration chunks and uploads them
// concurrently, bounded by UploadParallel.
func (f *FFmpeg) ChunkAudio(ctx context.Context, audioURL string, keyFor func(index int) string, chunkDurationSec int, totalDurationMs int64) ([]AudioChunk, error) {
	spans, err := PlanChunks(totalDurationMs, chunkDurationSec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.ChunkTimeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp(f.config.WorkDir, "audio-chunks-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	chunks := make([]AudioChunk, len(spans))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.UploadParallel)

	for _, span := range spans {
		span := span
		g.Go(func() error {
			localPath := filepath.Join(tmpDir, fmt.Sprintf("%03d.m4a", span.Index))
			_, err := f.run(gctx, f.config.FFmpegBin,
				"-y",
				"-ss", msToSeconds(span.StartTimeMs),
				"-t", msToSeconds(span.DurationMs),
				"-i", audioURL,
				"-vn",
				"-c:a", "aac",
				localPath,
			)
			if err != nil {
				return fmt.Errorf("ffmpeg chunk %d failed: %w", span.Index, err)
			}

			file, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("failed to open chunk %d: %w", span.Index, err)
			}
			defer file.Close()

			url, err := f.uploader.Put(gctx, keyFor(span.Index), "audio/mp4", file)
			if err != nil {
				return fmt.Errorf("failed to upload chunk %d: %w", span.Index, err)
			}

			mu.Lock()
			chunks[span.Index] = AudioChunk{
				Index:       span.Index,
				URL:         url,
				StartTimeMs: span.StartTimeMs,
				EndTimeMs:   span.EndTimeMs,
				DurationMs:  span.DurationMs,
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Info("Audio chunked",
		slog.String("audio_url", audioURL),
		slog.Int("chunk_count", len(chunks)),
	)

	return chunks, nil
}

// NormalizeSegment forces a generated segment to the exact target duration
// and a fixed frame rate. Generated segments drift slightly in both, and
// un-normalized segments desynchronize audio and video after stitching.
func (f *FFmpeg) NormalizeSegment(ctx context.Context, segmentURL, destKey string, targetDurationMs int64, targetFps int) (NormalizedSegment, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.NormalizeTimeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp(f.config.WorkDir, "normalize-")
	if err != nil {
		return NormalizedSegment{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	localPath := filepath.Join(tmpDir, "segment.mp4")
	_, err = f.run(ctx, f.config.FFmpegBin,
		"-y",
		"-i", segmentURL,
		"-t", msToSeconds(targetDurationMs),
		"-r", strconv.Itoa(targetFps),
		"-vf", fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", msToSeconds(targetDurationMs)),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		localPath,
	)
	if err != nil {
		return NormalizedSegment{}, fmt.Errorf("ffmpeg normalize failed for %s: %w", segmentURL, err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return NormalizedSegment{}, fmt.Errorf("failed to open normalized segment: %w", err)
	}
	defer file.Close()

	url, err := f.uploader.Put(ctx, destKey, "video/mp4", file)
	if err != nil {
		return NormalizedSegment{}, fmt.Errorf("failed to upload normalized segment: %w", err)
	}

	return NormalizedSegment{URL: url, DurationMs: targetDurationMs}, nil
}

// Stitch concatenates normalized segments, in order, into one file.
func (f *FFmpeg) Stitch(ctx context.Context, segmentURLs []string, destKey string) (StitchedVideo, error) {
	if len(segmentURLs) == 0 {
		return StitchedVideo{}, fmt.Errorf("no segments to stitch")
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.StitchTimeout)
	defer cancel()

	tmpDir, err := os.MkdirTemp(f.config.WorkDir, "stitch-")
	if err != nil {
		return StitchedVideo{}, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	var list bytes.Buffer
	for _, url := range segmentURLs {
		fmt.Fprintf(&list, "file '%s'\n", url)
	}
	listPath := filepath.Join(tmpDir, "segments.txt")
	if err := os.WriteFile(listPath, list.Bytes(), 0o644); err != nil {
		return StitchedVideo{}, fmt.Errorf("failed to write concat list: %w", err)
	}

	outPath := filepath.Join(tmpDir, "final.mp4")
	_, err = f.run(ctx, f.config.FFmpegBin,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-protocol_whitelist", "file,http,https,tcp,tls",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	if err != nil {
		return StitchedVideo{}, fmt.Errorf("ffmpeg stitch failed: %w", err)
	}

	durationMs, err := f.ProbeDuration(ctx, outPath)
	if err != nil {
		return StitchedVideo{}, fmt.Errorf("failed to probe stitched output: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return StitchedVideo{}, fmt.Errorf("failed to stat stitched output: %w", err)
	}

	file, err := os.Open(outPath)
	if err != nil {
		return StitchedVideo{}, fmt.Errorf("failed to open stitched output: %w", err)
	}
	defer file.Close()

	url, err := f.uploader.Put(ctx, destKey, "video/mp4", file)
	if err != nil {
		return StitchedVideo{}, fmt.Errorf("failed to upload stitched output: %w", err)
	}

	f.logger.Info("Segments stitched",
		slog.Int("segment_count", len(segmentURLs)),
		slog.Int64("duration_ms", durationMs),
		slog.Int64("file_size_bytes", info.Size()),
	)

	return StitchedVideo{URL: url, DurationMs: durationMs, FileSizeBytes: info.Size()}, nil
}

// run executes a command and returns its stdout, folding stderr into the
// error on failure.
func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s timed out: %w", bin, ctx.Err())
		}
		return "", fmt.Errorf("%s failed: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

func msToSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000.0, 'f', 3, 64)
}
