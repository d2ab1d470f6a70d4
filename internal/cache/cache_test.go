package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	// Create a mini Redis server for testing
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	if cache == nil {
		t.Fatal("Cache should not be nil")
	}

	// Test ping
	ctx := context.Background()
	if err := cache.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCache_AnalysisOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	analysis := &models.Analysis{
		ID:        "test-analysis-1",
		SourceKey: "sources/clip.y4m",
		Status:    models.AnalysisStatusPending,
		Config: models.AnalysisConfig{
			Width:   1920,
			Height:  1080,
			GOPSize: 150,
		},
	}

	// Test SetAnalysis
	err := cache.SetAnalysis(ctx, analysis, 5*time.Minute)
	if err != nil {
		t.Fatalf("SetAnalysis failed: %v", err)
	}

	// Test GetAnalysis
	retrieved, err := cache.GetAnalysis(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}

	if retrieved == nil {
		t.Fatal("Retrieved analysis should not be nil")
	}

	if retrieved.ID != analysis.ID {
		t.Errorf("Expected ID %s, got %s", analysis.ID, retrieved.ID)
	}

	if retrieved.SourceKey != analysis.SourceKey {
		t.Errorf("Expected source key %s, got %s", analysis.SourceKey, retrieved.SourceKey)
	}

	if retrieved.Config.GOPSize != 150 {
		t.Errorf("Expected GOP size 150, got %d", retrieved.Config.GOPSize)
	}

	// Test GetAnalysis for non-existent analysis
	nonExistent, err := cache.GetAnalysis(ctx, "non-existent")
	if err != nil {
		t.Fatalf("GetAnalysis for non-existent should not error: %v", err)
	}

	if nonExistent != nil {
		t.Error("Non-existent analysis should return nil")
	}

	// Test DeleteAnalysis
	err = cache.DeleteAnalysis(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("DeleteAnalysis failed: %v", err)
	}

	// Verify deletion
	deleted, err := cache.GetAnalysis(ctx, analysis.ID)
	if err != nil {
		t.Fatalf("GetAnalysis after delete failed: %v", err)
	}

	if deleted != nil {
		t.Error("Deleted analysis should return nil")
	}
}

func TestCache_SummaryOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	analysisID := "test-analysis-1"

	results := &models.AnalysisResults{
		Metadata: models.VideoMetadata{
			Width:       640,
			Height:      360,
			TotalFrames: 2,
			GOPSize:     150,
			Version:     "2.0.0",
		},
		GOPs: []models.GOPRecord{
			{GOPNum: 0, StartFrame: 0, EndFrame: 1, TotalBits: 768, IFrameCount: 1, PFrameCount: 1},
		},
		Frames: []models.FrameRecord{
			{FrameNum: 0, Type: models.FrameTypeI, EstimatedBits: 512},
			{FrameNum: 1, Type: models.FrameTypeP, EstimatedBits: 256},
		},
	}

	// Test SetSummary
	err := cache.SetSummary(ctx, analysisID, results, 10*time.Minute)
	if err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}

	// Test GetSummary
	retrieved, err := cache.GetSummary(ctx, analysisID)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}

	if retrieved == nil {
		t.Fatal("Retrieved summary should not be nil")
	}

	if retrieved.Metadata.Width != 640 {
		t.Errorf("Expected width 640, got %d", retrieved.Metadata.Width)
	}

	if len(retrieved.Frames) != 2 {
		t.Errorf("Expected 2 frames, got %d", len(retrieved.Frames))
	}

	if len(retrieved.GOPs) != 1 {
		t.Errorf("Expected 1 GOP, got %d", len(retrieved.GOPs))
	}

	if retrieved.Frames[1].Type != models.FrameTypeP {
		t.Errorf("Expected frame 1 type P, got %s", retrieved.Frames[1].Type)
	}

	// Test cache miss
	miss, err := cache.GetSummary(ctx, "non-existent")
	if err != nil {
		t.Fatalf("GetSummary for non-existent should not error: %v", err)
	}

	if miss != nil {
		t.Error("Non-existent summary should return nil")
	}

	// Test DeleteSummary
	err = cache.DeleteSummary(ctx, analysisID)
	if err != nil {
		t.Fatalf("DeleteSummary failed: %v", err)
	}

	deleted, err := cache.GetSummary(ctx, analysisID)
	if err != nil {
		t.Fatalf("GetSummary after delete failed: %v", err)
	}

	if deleted != nil {
		t.Error("Deleted summary should return nil")
	}
}

func TestCache_AnalysisProgress(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	analysisID := "test-analysis-1"

	// Test SetAnalysisProgress
	err := cache.SetAnalysisProgress(ctx, analysisID, 50.5, 5*time.Minute)
	if err != nil {
		t.Fatalf("SetAnalysisProgress failed: %v", err)
	}

	// Test GetAnalysisProgress
	progress, err := cache.GetAnalysisProgress(ctx, analysisID)
	if err != nil {
		t.Fatalf("GetAnalysisProgress failed: %v", err)
	}

	if progress != 50.5 {
		t.Errorf("Expected progress 50.5, got %f", progress)
	}
}

func TestCache_ReportURLOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	analysisID := "test-analysis-1"
	format := "json"
	url := "https://storage.example.com/reports/test-analysis-1.json?sig=abc"

	// Test SetReportURL
	err := cache.SetReportURL(ctx, analysisID, format, url, 10*time.Minute)
	if err != nil {
		t.Fatalf("SetReportURL failed: %v", err)
	}

	// Test GetReportURL
	retrieved, err := cache.GetReportURL(ctx, analysisID, format)
	if err != nil {
		t.Fatalf("GetReportURL failed: %v", err)
	}

	if retrieved != url {
		t.Errorf("Expected URL %s, got %s", url, retrieved)
	}

	// Test non-existent report URL
	nonExistent, err := cache.GetReportURL(ctx, analysisID, "xml")
	if err != nil {
		t.Fatalf("GetReportURL for non-existent should not error: %v", err)
	}

	if nonExistent != "" {
		t.Error("Non-existent report URL should return empty string")
	}
}

func TestCache_StatOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	stat := "analyses_completed"

	// Test IncrementStat
	err := cache.IncrementStat(ctx, stat)
	if err != nil {
		t.Fatalf("IncrementStat failed: %v", err)
	}

	// Increment again
	err = cache.IncrementStat(ctx, stat)
	if err != nil {
		t.Fatalf("IncrementStat failed: %v", err)
	}

	// Test GetStat
	value, err := cache.GetStat(ctx, stat)
	if err != nil {
		t.Fatalf("GetStat failed: %v", err)
	}

	if value != 2 {
		t.Errorf("Expected stat value 2, got %d", value)
	}

	// Test SetStat
	err = cache.SetStat(ctx, stat, 100, 5*time.Minute)
	if err != nil {
		t.Fatalf("SetStat failed: %v", err)
	}

	value, err = cache.GetStat(ctx, stat)
	if err != nil {
		t.Fatalf("GetStat failed: %v", err)
	}

	if value != 100 {
		t.Errorf("Expected stat value 100, got %d", value)
	}
}

func TestCache_RateLimit(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	key := "user:123"
	limit := int64(5)
	window := 1 * time.Minute

	// Should allow first 5 requests
	for i := 0; i < 5; i++ {
		allowed, err := cache.CheckRateLimit(ctx, key, limit, window)
		if err != nil {
			t.Fatalf("CheckRateLimit failed: %v", err)
		}

		if !allowed {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// Should deny 6th request
	allowed, err := cache.CheckRateLimit(ctx, key, limit, window)
	if err != nil {
		t.Fatalf("CheckRateLimit failed: %v", err)
	}

	if allowed {
		t.Error("Request beyond limit should be denied")
	}
}

func TestCache_Locking(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	resource := "source:sources/clip.y4m"

	// Test AcquireLock
	acquired, err := cache.AcquireLock(ctx, resource, 1*time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	if !acquired {
		t.Error("First lock acquisition should succeed")
	}

	// Test acquiring same lock again (should fail)
	acquired, err = cache.AcquireLock(ctx, resource, 1*time.Minute)
	if err != nil {
		t.Fatalf("Second AcquireLock failed: %v", err)
	}

	if acquired {
		t.Error("Second lock acquisition should fail")
	}

	// Test ReleaseLock
	err = cache.ReleaseLock(ctx, resource)
	if err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	// Should be able to acquire again
	acquired, err = cache.AcquireLock(ctx, resource, 1*time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}

	if !acquired {
		t.Error("Lock acquisition after release should succeed")
	}
}

func TestCache_Exists(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	key := "test:key"

	// Key should not exist initially
	exists, err := cache.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}

	if exists {
		t.Error("Key should not exist initially")
	}

	// Set a value
	err = cache.SetWithJSON(ctx, key, map[string]string{"test": "value"}, 5*time.Minute)
	if err != nil {
		t.Fatalf("SetWithJSON failed: %v", err)
	}

	// Key should exist now
	exists, err = cache.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}

	if !exists {
		t.Error("Key should exist after setting")
	}
}

func TestCache_SetGetWithJSON(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	key := "test:json"

	type TestData struct {
		Name  string
		Count int
	}

	original := TestData{
		Name:  "test",
		Count: 42,
	}

	// Test SetWithJSON
	err := cache.SetWithJSON(ctx, key, original, 5*time.Minute)
	if err != nil {
		t.Fatalf("SetWithJSON failed: %v", err)
	}

	// Test GetWithJSON
	var retrieved TestData
	err = cache.GetWithJSON(ctx, key, &retrieved)
	if err != nil {
		t.Fatalf("GetWithJSON failed: %v", err)
	}

	if retrieved.Name != original.Name {
		t.Errorf("Expected Name %s, got %s", original.Name, retrieved.Name)
	}

	if retrieved.Count != original.Count {
		t.Errorf("Expected Count %d, got %d", original.Count, retrieved.Count)
	}
}

// Benchmark tests
func BenchmarkCache_SetSummary(b *testing.B) {
	mr, _ := miniredis.Run()
	defer mr.Close()

	cache, _ := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	defer cache.Close()

	ctx := context.Background()
	results := &models.AnalysisResults{
		Metadata: models.VideoMetadata{Width: 1920, Height: 1080, TotalFrames: 300},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.SetSummary(ctx, "benchmark-analysis", results, 5*time.Minute)
	}
}

func BenchmarkCache_GetSummary(b *testing.B) {
	mr, _ := miniredis.Run()
	defer mr.Close()

	cache, _ := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	defer cache.Close()

	ctx := context.Background()
	results := &models.AnalysisResults{
		Metadata: models.VideoMetadata{Width: 1920, Height: 1080, TotalFrames: 300},
	}

	cache.SetSummary(ctx, "benchmark-analysis", results, 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.GetSummary(ctx, "benchmark-analysis")
	}
}
