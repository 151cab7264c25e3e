package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tunereel/tunereel-be/internal/blob"
	"github.com/tunereel/tunereel-be/internal/config"
	"github.com/tunereel/tunereel-be/internal/media"
	"github.com/tunereel/tunereel-be/internal/pipeline"
	pipestore "github.com/tunereel/tunereel-be/internal/pipeline/store"
	"github.com/tunereel/tunereel-be/internal/providers"
	"github.com/tunereel/tunereel-be/internal/sweeper"
	"github.com/tunereel/tunereel-be/internal/worker"
	"github.com/tunereel/tunereel-be/shared/logger"
	"github.com/tunereel/tunereel-be/shared/postgresql"
	"github.com/tunereel/tunereel-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging, cfg.App.Name)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object storage
	blobStore, err := blob.NewS3Store(ctx, &blob.Config{
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		Endpoint:      cfg.Storage.Endpoint,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		UsePathStyle:  cfg.Storage.UsePathStyle,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	appLogger.Info("Object storage initialized",
		slog.String("bucket", cfg.Storage.Bucket),
	)

	// Wire the pipeline: versioned store, CAS updater, media transformer,
	// generation providers.
	jobStore := pipestore.NewStorage(dbClient.GetDB(), appLogger.Logger)
	updater := pipestore.NewAtomicUpdater(jobStore, pipestore.UpdaterConfig{
		MaxAttempts: cfg.Pipeline.CASMaxAttempts,
		BaseDelay:   cfg.Pipeline.CASBaseDelay,
		MaxDelay:    cfg.Pipeline.CASMaxDelay,
	}, appLogger.Logger)

	transformer := media.NewFFmpeg(&media.FFmpegConfig{
		FFmpegBin:        cfg.Media.FFmpegBin,
		FFprobeBin:       cfg.Media.FFprobeBin,
		WorkDir:          cfg.Media.WorkDir,
		ProbeTimeout:     cfg.Media.ProbeTimeout,
		ChunkTimeout:     cfg.Media.ChunkTimeout,
		NormalizeTimeout: cfg.Media.NormalizeTimeout,
		StitchTimeout:    cfg.Media.StitchTimeout,
		UploadParallel:   cfg.Media.UploadParallel,
	}, blobStore, appLogger.Logger)

	sceneClient := providers.NewClient(&providers.Config{
		BaseURL:        cfg.Providers.Scene.BaseURL,
		APIKey:         cfg.Providers.Scene.APIKey(),
		RequestTimeout: cfg.Providers.Scene.RequestTimeout,
	}, appLogger.Logger)

	videoClient := providers.NewClient(&providers.Config{
		BaseURL:        cfg.Providers.Video.BaseURL,
		APIKey:         cfg.Providers.Video.APIKey(),
		RequestTimeout: cfg.Providers.Video.RequestTimeout,
	}, appLogger.Logger)

	pipe := pipeline.New(
		appLogger.Logger,
		jobStore,
		updater,
		rabbitClient,
		blobStore,
		transformer,
		sceneClient,
		videoClient,
		pipeline.Config{
			TargetFps:         cfg.Pipeline.TargetFps,
			MaxChunks:         cfg.Pipeline.MaxChunks,
			ScenePollInterval: cfg.Providers.Scene.PollInterval,
			ScenePollTimeout:  cfg.Providers.Scene.PollTimeout,
			VideoPollInterval: cfg.Providers.Video.PollInterval,
			VideoPollTimeout:  cfg.Providers.Video.PollTimeout,
		},
	)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:         appLogger.Logger,
		RabbitClient:   rabbitClient,
		Pipeline:       pipe,
		Concurrency:    cfg.Worker.Concurrency,
		PrefetchCount:  cfg.RabbitMQ.Consumer.PrefetchCount,
		MessageTimeout: cfg.Worker.MessageTimeout,
		QueueName:      cfg.RabbitMQ.Queue.Name,
	})

	// Retention sweeper runs alongside the consumers
	sweep := sweeper.New(blobStore, sweeper.Config{
		Interval:  cfg.Sweeper.Interval,
		Retention: cfg.Sweeper.Retention,
	}, appLogger.Logger)
	go sweep.Run(ctx)

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to shutdown gracefully
	shutdownTimeout := cfg.Worker.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop worker
	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig, service string) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		Service:      service,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
