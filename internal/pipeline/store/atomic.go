package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// Atomic updater defaults.
const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 50 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
)

// UpdaterConfig holds atomic updater retry configuration
type UpdaterConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// AtomicUpdater wraps the store with retrying compare-and-swap semantics:
// read the row (including its version), apply a mutation, write conditioned
// on that version, and on conflict re-read and retry with capped exponential
// backoff plus jitter. It is the only way any component mutates a job or
// chunk row.
type AtomicUpdater struct {
	rows   Rows
	config UpdaterConfig
	logger *slog.Logger
}

// NewAtomicUpdater creates an atomic updater over the given row store.
func NewAtomicUpdater(rows Rows, config UpdaterConfig, logger *slog.Logger) *AtomicUpdater {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	return &AtomicUpdater{rows: rows, config: config, logger: logger}
}

// UpdateJob applies mutate to the current job row and writes it back under
// optimistic locking. A mutation error aborts without writing and is returned
// as-is, so sentinel checks inside mutations (stale transition, stitch
// already triggered) pass through untouched. Exhausted retries return
// domain.ErrVersionConflict: the row state is unknown and the caller must not
// assume the update happened.
func (u *AtomicUpdater) UpdateJob(ctx context.Context, jobID string, mutate func(*domain.Job) error) (*domain.Job, error) {
	var lastErr error

	for attempt := 0; attempt < u.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := u.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		job, err := u.rows.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if err := mutate(job); err != nil {
			return job, err
		}

		err = u.rows.CompareAndSwapJob(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		u.logger.Debug("Job update lost version race, retrying",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt+1),
		)
	}

	u.logger.Error("Job update exhausted optimistic-lock retries, state unknown",
		slog.String("job_id", jobID),
		slog.Int("attempts", u.config.MaxAttempts),
	)

	return nil, fmt.Errorf("job %s: %w", jobID, lastErr)
}

// UpdateChunk is the chunk analogue of UpdateJob.
func (u *AtomicUpdater) UpdateChunk(ctx context.Context, jobID string, chunkIndex int, mutate func(*domain.Chunk) error) (*domain.Chunk, error) {
	var lastErr error

	for attempt := 0; attempt < u.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := u.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		chunk, err := u.rows.GetChunk(ctx, jobID, chunkIndex)
		if err != nil {
			return nil, err
		}

		if err := mutate(chunk); err != nil {
			return chunk, err
		}

		err = u.rows.CompareAndSwapChunk(ctx, chunk)
		if err == nil {
			return chunk, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return nil, err
		}

		lastErr = err
		u.logger.Debug("Chunk update lost version race, retrying",
			slog.String("job_id", jobID),
			slog.Int("chunk_index", chunkIndex),
			slog.Int("attempt", attempt+1),
		)
	}

	u.logger.Error("Chunk update exhausted optimistic-lock retries, state unknown",
		slog.String("job_id", jobID),
		slog.Int("chunk_index", chunkIndex),
		slog.Int("attempts", u.config.MaxAttempts),
	)

	return nil, fmt.Errorf("job %s chunk %d: %w", jobID, chunkIndex, lastErr)
}

// backoff sleeps for an exponentially growing delay capped at MaxDelay, with
// random jitter to avoid thundering-herd on contended jobs.
func (u *AtomicUpdater) backoff(ctx context.Context, attempt int) error {
	delay := u.config.BaseDelay << uint(attempt-1)
	if delay > u.config.MaxDelay || delay <= 0 {
		delay = u.config.MaxDelay
	}
	delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
