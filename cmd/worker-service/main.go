package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldlens/fieldlens/internal/composite"
	"github.com/fieldlens/fieldlens/internal/config"
	"github.com/fieldlens/fieldlens/internal/engine"
	"github.com/fieldlens/fieldlens/internal/imagery"
	"github.com/fieldlens/fieldlens/internal/index"
	"github.com/fieldlens/fieldlens/internal/metrics"
	"github.com/fieldlens/fieldlens/internal/queue"
	"github.com/fieldlens/fieldlens/internal/results"
	"github.com/fieldlens/fieldlens/internal/worker"
	"github.com/fieldlens/fieldlens/shared/logger"
	"github.com/fieldlens/fieldlens/shared/postgresql"
	"github.com/fieldlens/fieldlens/shared/rabbitmq"
	"github.com/joho/godotenv"
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
	defaultConfigPath := os.Getenv("FIELDLENS_WORKER_CONFIG_PATH")
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

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
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

	// Initialize queue and result sink, make sure their schemas exist
	jobQueue := queue.NewPostgresQueue(dbClient, backoffPolicy(&cfg.Queue), appLogger.Logger)
	sink := results.NewPostgresSink(dbClient, appLogger.Logger)

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	if err := jobQueue.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		return fmt.Errorf("failed to ensure queue schema: %w", err)
	}
	if err := sink.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		return fmt.Errorf("failed to ensure timeseries schema: %w", err)
	}
	cancelSchema()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize RabbitMQ notifications (optional; polling covers the rest)
	var (
		rabbitClient  *rabbitmq.Client
		notifications <-chan struct{}
	)
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}

		notifications, err = rabbitClient.Notifications(ctx, "fieldlens-worker")
		if err != nil {
			return fmt.Errorf("failed to start rabbitmq consumer: %w", err)
		}

		appLogger.Info("RabbitMQ connection established")
	} else {
		appLogger.Info("RabbitMQ disabled, relying on polling")
	}

	// Build the processing engine
	processingEngine, err := buildEngine(&cfg.Processing, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to build processing engine: %w", err)
	}

	// Metrics endpoint
	collector := metrics.NewCollector()
	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort, collector, appLogger.Logger)

	// Create the scheduler
	scheduler := worker.NewScheduler(&worker.Config{
		Logger:            appLogger.Logger,
		Queue:             jobQueue,
		Engine:            processingEngine,
		Sink:              sink,
		Metrics:           collector,
		Notifications:     notifications,
		Concurrency:       cfg.Worker.Concurrency,
		LeaseDuration:     cfg.Worker.LeaseDuration,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		PollInterval:      cfg.Worker.PollInterval,
		ReapInterval:      cfg.Worker.ReapInterval,
	})

	// Start scheduler in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := scheduler.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully",
		slog.String("worker_id", scheduler.WorkerID()),
		slog.Int("concurrency", cfg.Worker.Concurrency),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Scheduler error",
			slog.Any("error", err),
		)
		return err
	}

	// Stop leasing and let in-flight jobs drain; the context stays alive so
	// they can finish. Only a blown drain deadline force-cancels them.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Scheduler stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Scheduler drain timeout exceeded, canceling in-flight jobs")
		cancel()
		<-done
	}

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed",
				slog.Any("error", err),
			)
		}
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

// buildEngine assembles the cloud filter, index registry and scene source
// from the processing configuration.
func buildEngine(cfg *config.ProcessingConfig, logger *slog.Logger) (*engine.Engine, error) {
	period, err := composite.ParsePeriod(cfg.CompositePeriod)
	if err != nil {
		return nil, err
	}

	registry := index.NewRegistry(index.Params{
		SoilFactor: cfg.SaviSoilFactor,
	})

	filter := composite.Config{
		PixelCloudThreshold: cfg.PixelCloudThreshold,
		SceneCloudThreshold: cfg.SceneCloudThreshold,
	}

	return engine.New(engine.Config{
		Fetcher:  &imagery.SyntheticFetcher{},
		Registry: registry,
		Filter:   filter,
		Period:   period,
		Logger:   logger,
	}), nil
}

// startMetricsServer exposes /metrics; disabled when the port is 0.
func startMetricsServer(port int, collector *metrics.Collector, logger *slog.Logger) *http.Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Metrics server listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
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
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		ExchangeName:  cfg.ExchangeName,
		QueueName:     cfg.QueueName,
		RoutingKey:    cfg.RoutingKey,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
		Heartbeat:     cfg.Heartbeat,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

func backoffPolicy(cfg *config.QueueConfig) queue.BackoffPolicy {
	policy := queue.DefaultBackoff()
	if cfg.BackoffBase > 0 {
		policy.Base = cfg.BackoffBase
	}
	if cfg.BackoffCap > 0 {
		policy.Cap = cfg.BackoffCap
	}
	if cfg.BackoffJitter > 0 {
		policy.Jitter = cfg.BackoffJitter
	}
	return policy
}
