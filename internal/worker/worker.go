package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunereel/tunereel-be/internal/pipeline"
	"github.com/tunereel/tunereel-be/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	RabbitClient   *rabbitmq.Client
	Pipeline       *pipeline.Pipeline
	Concurrency    int
	PrefetchCount  int
	MessageTimeout time.Duration
	QueueName      string
}

// delivery is one queue message handed from the dispatcher to the pool.
type delivery struct {
	Body        []byte
	DeliveryTag uint64
}

// Worker consumes pipeline messages from the queue and dispatches them to a
// bounded pool of goroutines. Any number of worker processes may run
// concurrently against the same queue; coordination happens entirely through
// the versioned store, never through shared memory.
type Worker struct {
	logger         *slog.Logger
	rabbitClient   *rabbitmq.Client
	pipeline       *pipeline.Pipeline
	concurrency    int
	prefetchCount  int
	messageTimeout time.Duration
	queueName      string
	workerID       string
	jobsChan       chan *delivery
	wg             sync.WaitGroup
	stopChan       chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	timeout := cfg.MessageTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	return &Worker{
		logger:         cfg.Logger,
		rabbitClient:   cfg.RabbitClient,
		pipeline:       cfg.Pipeline,
		concurrency:    concurrency,
		prefetchCount:  prefetch,
		messageTimeout: timeout,
		queueName:      cfg.QueueName,
		workerID:       fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		jobsChan:       make(chan *delivery, concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start begins consuming and processing pipeline messages. It blocks until
// the context is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("message_timeout", w.messageTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
}
