package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tunereel/tunereel-be/internal/pipeline/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - jobsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			err := w.handleMessage(ctx, msg.Body)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
				)
				continue
			}

			if err != nil {
				requeue := w.shouldRequeue(err)
				w.logger.Error("Message processing failed",
					slog.String("worker_name", workerName),
					slog.String("error", err.Error()),
					slog.Bool("requeue", requeue),
				)
				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				}
			} else {
				if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("worker_name", workerName),
						slog.String("error", ackErr.Error()),
					)
				}
			}
		}
	}
}

// shouldRequeue decides whether a failed message goes back on the queue.
// Stage transitions are idempotent, so redelivery of transient failures is
// safe; everything terminal or malformed goes to the DLQ instead.
func (w *Worker) shouldRequeue(err error) bool {
	// Malformed or unroutable messages can never succeed
	if errors.Is(err, domain.ErrInvalidMessage) {
		return false
	}

	// A job or chunk that no longer exists will not appear on retry
	if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrChunkNotFound) {
		return false
	}

	// Failing to propagate a chunk failure is raised for operators, not retried
	if errors.Is(err, domain.ErrPropagationFailed) {
		return false
	}

	var retryable *domain.RetryableError
	return errors.As(err, &retryable)
}
