package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/analyzer"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/cache"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/config"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/database"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/metrics"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/queue"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/storage"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/tracing"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/webhook"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize tracing
	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("motionscan-worker", cfg.Tracing.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer closer.Close()
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	// Initialize storage with parallel transfers for large sources
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	optStor := storage.NewOptimizedStorage(stor, 0)

	// Initialize queue with its retry and dead letter topology
	q, err := queue.New(cfg.Queue)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		log.Fatalf("Failed to set up dead letter queue: %v", err)
	}

	// Initialize cache
	c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to cache: %v", err)
	}
	defer c.Close()

	// Initialize analysis service
	analysisService := analyzer.NewService(cfg.Worker, cfg.Analyzer, repo, optStor, c, appLog)
	workerLog := appLog.WithWorkerID(analysisService.WorkerID())

	// Lifecycle webhooks fire on the status transitions this worker records
	webhookService := webhook.NewService(repo, appLog)
	analysisService.SetNotifier(webhookService)

	// Serve Prometheus metrics
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, appLog)
		go func() {
			if err := metricsServer.Start(); err != nil {
				workerLog.WithError(err).Error("metrics server stopped")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go webhookService.RetryWorker(ctx)

	// Requeue analyses whose worker died without reporting back
	sweeper := scheduler.NewSweeper(repo, q, c, appLog,
		cfg.Worker.SweepInterval, cfg.Worker.SweepStaleAfter, queue.MaxRetries)
	go sweeper.Start(ctx)

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		workerLog.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Job handler
	jobHandler := func(job *models.AnalysisJob) error {
		jobLog := workerLog.WithJobID(job.ID).WithAnalysisID(job.AnalysisID)
		jobLog.LogJobEvent(job.ID, "job_received", models.AnalysisStatusProcessing, map[string]interface{}{
			"source_key":  job.SourceKey,
			"retry_count": job.RetryCount,
		})

		if err := analysisService.ProcessJob(ctx, job); err != nil {
			jobLog.WithError(err).Error("Failed to process job")
			return err
		}

		jobLog.LogJobEvent(job.ID, "job_finished", models.AnalysisStatusCompleted, nil)
		return nil
	}

	// Start consuming jobs
	workerLog.Info("Worker started, waiting for jobs...")
	if err := q.ConsumeJobs(ctx, jobHandler); err != nil {
		log.Fatalf("Failed to consume jobs: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()
	workerLog.Info("Worker stopped")
}
