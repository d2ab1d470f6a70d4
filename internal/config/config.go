package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/score"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Worker   WorkerConfig
	Auth     AuthConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Analyzer AnalyzerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	UploadDir       string
	UploadPartSize  int64
}

// WorkerConfig holds analysis worker configuration
type WorkerConfig struct {
	TempDir         string
	FFmpegPath      string
	FFprobePath     string
	ResultCacheTTL  time.Duration
	SweepInterval   time.Duration
	SweepStaleAfter time.Duration
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger tracing configuration
type TracingConfig struct {
	Enabled        bool
	JaegerEndpoint string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SourceBucket    string
	ReportBucket    string
	Region          string
	UseSSL          bool
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// AnalyzerConfig holds the default analysis parameters. Per-job configs
// submitted through the API override these.
type AnalyzerConfig struct {
	GOPSize        int
	BFrames        int
	NumFrames      int
	SearchRange    int
	ACCompensation bool
	ScoreVersion   string
	Format         string
	Detail         string
	Trailing       string
	Weights        score.Weights
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.rateLimitRPS", 10.0)
	viper.SetDefault("server.rateLimitBurst", 20)
	viper.SetDefault("server.uploadDir", "/tmp/motionscan/uploads")
	viper.SetDefault("server.uploadPartSize", 5*1024*1024)

	// Worker defaults
	viper.SetDefault("worker.tempDir", "/tmp/motionscan")
	viper.SetDefault("worker.ffmpegPath", "ffmpeg")
	viper.SetDefault("worker.ffprobePath", "ffprobe")
	viper.SetDefault("worker.resultCacheTTL", "1h")
	viper.SetDefault("worker.sweepInterval", "1m")
	viper.SetDefault("worker.sweepStaleAfter", "15m")

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "motionscan")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.sourceBucket", "sources")
	viper.SetDefault("storage.reportBucket", "reports")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Analyzer defaults, mirroring the CLI
	viper.SetDefault("analyzer.gopSize", 150)
	viper.SetDefault("analyzer.bframes", 0)
	viper.SetDefault("analyzer.numFrames", 0)
	viper.SetDefault("analyzer.searchRange", 64)
	viper.SetDefault("analyzer.acCompensation", false)
	viper.SetDefault("analyzer.scoreVersion", "v2")
	viper.SetDefault("analyzer.format", "csv")
	viper.SetDefault("analyzer.detail", "frame")
	viper.SetDefault("analyzer.trailing", "drop")
	viper.SetDefault("analyzer.weights.spatial", 0.25)
	viper.SetDefault("analyzer.weights.motion", 0.30)
	viper.SetDefault("analyzer.weights.residual", 0.25)
	viper.SetDefault("analyzer.weights.error", 0.20)
}
