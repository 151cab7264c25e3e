// Package sweeper periodically deletes pipeline artifacts older than the
// retention window, regardless of job status. It is the backstop for cleanup
// calls that never ran because a worker crashed before executing them.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/tunereel/tunereel-be/internal/blob"
)

// Lister is the slice of object storage the sweeper needs.
type Lister interface {
	ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]blob.Object, error)
	Delete(ctx context.Context, key string) error
}

// Config holds sweeper configuration
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Sweeper deletes stale pipeline artifacts on a fixed interval.
type Sweeper struct {
	store  Lister
	config Config
	logger *slog.Logger
}

// New creates a sweeper.
func New(store Lister, config Config, logger *slog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	return &Sweeper{store: store, config: config, logger: logger}
}

// Run sweeps until the context is canceled. One pass runs immediately.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Retention sweeper started",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("retention", s.config.Retention),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes every object under the pipeline roots older than the
// retention window. Individual delete failures are logged and skipped; the
// next pass retries them.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.Retention)
	deleted := 0

	for _, root := range blob.SweepRoots() {
		stale, err := s.store.ListOlderThan(ctx, root, cutoff)
		if err != nil {
			s.logger.Warn("Sweep could not list objects",
				slog.String("prefix", root),
				slog.Any("error", err),
			)
			continue
		}

		for _, obj := range stale {
			if err := s.store.Delete(ctx, obj.Key); err != nil {
				s.logger.Warn("Sweep could not delete object",
					slog.String("key", obj.Key),
					slog.Any("error", err),
				)
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info("Retention sweep pass complete",
			slog.Int("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
}
