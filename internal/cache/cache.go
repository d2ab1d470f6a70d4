package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Analysis Cache Operations

// SetAnalysis caches analysis metadata
func (c *Cache) SetAnalysis(ctx context.Context, analysis *models.Analysis, ttl time.Duration) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	key := fmt.Sprintf("analysis:%s", analysis.ID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetAnalysis retrieves analysis metadata from cache
func (c *Cache) GetAnalysis(ctx context.Context, analysisID string) (*models.Analysis, error) {
	key := fmt.Sprintf("analysis:%s", analysisID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get analysis from cache: %w", err)
	}

	var analysis models.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}

	return &analysis, nil
}

// DeleteAnalysis removes analysis from cache
func (c *Cache) DeleteAnalysis(ctx context.Context, analysisID string) error {
	key := fmt.Sprintf("analysis:%s", analysisID)
	return c.client.Del(ctx, key).Err()
}

// Summary Cache Operations

// SetSummary caches the full results of a completed analysis
func (c *Cache) SetSummary(ctx context.Context, analysisID string, results *models.AnalysisResults, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	key := fmt.Sprintf("analysis:summary:%s", analysisID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetSummary retrieves cached analysis results
func (c *Cache) GetSummary(ctx context.Context, analysisID string) (*models.AnalysisResults, error) {
	key := fmt.Sprintf("analysis:summary:%s", analysisID)
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get summary from cache: %w", err)
	}

	var results models.AnalysisResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &results, nil
}

// DeleteSummary removes cached results, forcing the next read to hit the database
func (c *Cache) DeleteSummary(ctx context.Context, analysisID string) error {
	key := fmt.Sprintf("analysis:summary:%s", analysisID)
	return c.client.Del(ctx, key).Err()
}

// SetAnalysisProgress caches analysis progress for quick retrieval
func (c *Cache) SetAnalysisProgress(ctx context.Context, analysisID string, progress float64, ttl time.Duration) error {
	key := fmt.Sprintf("analysis:progress:%s", analysisID)
	return c.client.Set(ctx, key, progress, ttl).Err()
}

// GetAnalysisProgress retrieves analysis progress from cache
func (c *Cache) GetAnalysisProgress(ctx context.Context, analysisID string) (float64, error) {
	key := fmt.Sprintf("analysis:progress:%s", analysisID)
	return c.client.Get(ctx, key).Float64()
}

// Report URL Cache Operations

// SetReportURL caches a presigned report download URL
func (c *Cache) SetReportURL(ctx context.Context, analysisID string, format string, url string, ttl time.Duration) error {
	key := fmt.Sprintf("report:url:%s:%s", analysisID, format)
	return c.client.Set(ctx, key, url, ttl).Err()
}

// GetReportURL retrieves a presigned report URL from cache
func (c *Cache) GetReportURL(ctx context.Context, analysisID string, format string) (string, error) {
	key := fmt.Sprintf("report:url:%s:%s", analysisID, format)
	url, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // Cache miss
		}
		return "", fmt.Errorf("failed to get report URL from cache: %w", err)
	}
	return url, nil
}

// Stats Cache Operations

// IncrementStat increments a statistic counter
func (c *Cache) IncrementStat(ctx context.Context, stat string) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Incr(ctx, key).Err()
}

// GetStat retrieves a statistic value
func (c *Cache) GetStat(ctx context.Context, stat string) (int64, error) {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Get(ctx, key).Int64()
}

// SetStat sets a statistic value
func (c *Cache) SetStat(ctx context.Context, stat string, value int64, ttl time.Duration) error {
	key := fmt.Sprintf("stats:%s", stat)
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Rate Limiting Operations

// CheckRateLimit checks if a rate limit has been exceeded
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	// Increment counter
	count, err := c.client.Incr(ctx, rateLimitKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	// Set expiry on first request
	if count == 1 {
		if err := c.client.Expire(ctx, rateLimitKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set expiry: %w", err)
		}
	}

	// Check if limit exceeded
	return count <= limit, nil
}

// Locking Operations for Distributed Systems

// AcquireLock attempts to acquire a distributed lock. Workers lock on the
// source key so the same upload is never analyzed twice concurrently.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, "locked", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Cache) ReleaseLock(ctx context.Context, resource string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.Del(ctx, key).Err()
}

// Batch Operations

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Exists checks if a key exists
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetWithJSON gets a value with JSON unmarshaling
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil // Cache miss
		}
		return fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
