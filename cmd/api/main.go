package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/cache"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/config"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/database"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/metrics"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/middleware"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/queue"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/storage"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/tracing"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/upload"
)

// API bundles the dependencies the analysis endpoints need.
type API struct {
	cfg     *config.Config
	repo    *database.Repository
	storage *storage.OptimizedStorage
	queue   *queue.Queue
	cache   *cache.Cache
	uploads *upload.Service
	log     *logging.Logger
}

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

	// Initialize JWT secret from config
	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	// Initialize tracing
	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("motionscan-api", cfg.Tracing.JaegerEndpoint)
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

	// Chunked upload sessions live on local disk until completion
	uploads := upload.NewService(cfg.Server.UploadDir, cfg.Server.UploadPartSize, appLog)

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go uploads.CleanupExpired(cleanupCtx)

	// Create API instance
	api := &API{
		cfg:     cfg,
		repo:    repo,
		storage: optStor,
		queue:   q,
		cache:   c,
		uploads: uploads,
		log:     appLog,
	}

	// Serve Prometheus metrics on its own port
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, appLog)
		go func() {
			if err := metricsServer.Start(); err != nil {
				appLog.WithError(err).Error("metrics server stopped")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Setup router
	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go rateLimiter.Cleanup()

	router := setupRouter(api, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		appLog.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLog.Info("Server stopped")
}

func setupRouter(api *API, rl *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(api.log))
	router.Use(middleware.Metrics())

	// Health check
	router.GET("/health", api.healthCheck)

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	v1.Use(middleware.RateLimit(rl))
	{
		v1.POST("/analyses", api.submitAnalysis)
		v1.GET("/analyses", api.listAnalyses)
		v1.GET("/analyses/:id", api.getAnalysis)
		v1.GET("/analyses/:id/frames", api.getFrameRecords)
		v1.GET("/analyses/:id/gops", api.getGOPRecords)
		v1.GET("/analyses/:id/report", api.getReportURL)
		v1.GET("/stats", api.getStats)

		v1.POST("/uploads", api.initiateUpload)
		v1.PUT("/uploads/:id/parts/:number", api.uploadPart)
		v1.GET("/uploads/:id", api.getUploadStatus)
		v1.POST("/uploads/:id/complete", api.completeUpload)
		v1.DELETE("/uploads/:id", api.abortUpload)

		v1.POST("/webhooks", api.createWebhook)
		v1.GET("/webhooks", api.listWebhooks)
		v1.DELETE("/webhooks/:id", api.deleteWebhook)
		v1.GET("/webhooks/:id/deliveries", api.listWebhookDeliveries)
	}

	return router
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// Check database health
	if err := api.repo.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	// Check cache health
	if err := api.cache.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}
