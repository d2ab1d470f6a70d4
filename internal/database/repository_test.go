package database

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/config"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// These are integration tests. They run only when TEST_DATABASE_HOST points
// at a Postgres instance with the motionscan schema loaded.

func setupTestRepository(t *testing.T) *Repository {
	host := os.Getenv("TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("Skipping integration test - requires database connection")
	}

	db, err := New(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "motionscan_test",
		SSLMode:  "disable",
		MaxConns: 4,
		MinConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewRepository(db)
}

func TestRepository_AnalysisLifecycle(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	analysis := &models.Analysis{
		SourceKey: "sources/lifecycle.y4m",
		Status:    models.AnalysisStatusPending,
		Config: models.AnalysisConfig{
			GOPSize:      150,
			BFrames:      2,
			Format:       "json",
			Detail:       "frame",
			ScoreVersion: models.ScoreVersionV2,
		},
	}

	err := repo.CreateAnalysis(ctx, analysis)
	require.NoError(t, err)
	require.NotEmpty(t, analysis.ID)
	assert.False(t, analysis.CreatedAt.IsZero())

	retrieved, err := repo.GetAnalysis(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.SourceKey, retrieved.SourceKey)
	assert.Equal(t, models.AnalysisStatusPending, retrieved.Status)
	assert.Equal(t, 150, retrieved.Config.GOPSize)

	err = repo.MarkAnalysisStarted(ctx, analysis.ID, "worker-1")
	require.NoError(t, err)

	started, err := repo.GetAnalysis(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusProcessing, started.Status)
	assert.Equal(t, "worker-1", started.WorkerID)
	require.NotNil(t, started.StartedAt)

	err = repo.MarkAnalysisCompleted(ctx, analysis.ID, 300, 123456, 0.42, "reports/lifecycle.json")
	require.NoError(t, err)

	completed, err := repo.GetAnalysis(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusCompleted, completed.Status)
	assert.Equal(t, 300, completed.TotalFrames)
	assert.Equal(t, int64(123456), completed.TotalBits)
	assert.InDelta(t, 0.42, completed.AvgComplexity, 1e-9)
	assert.Equal(t, "reports/lifecycle.json", completed.ReportKey)
	require.NotNil(t, completed.CompletedAt)
}

func TestRepository_GetAnalysisNotFound(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetAnalysis(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_FrameAndGOPRecords(t *testing.T) {
	repo := setupTestRepository(t)
	ctx := context.Background()

	analysis := &models.Analysis{
		SourceKey: "sources/records.y4m",
		Status:    models.AnalysisStatusProcessing,
	}
	require.NoError(t, repo.CreateAnalysis(ctx, analysis))

	frames := []models.FrameRecord{
		{
			FrameNum:      0,
			Type:          models.FrameTypeI,
			CountIntra:    4,
			EstimatedBits: 512,
			Error:         100,
			NormSpatial:   0.5,
			UnifiedV2:     0.4,
			MVStats:       models.MVStats{TotalMVCount: 4},
		},
		{
			FrameNum:      1,
			Type:          models.FrameTypeP,
			CountInterP:   3,
			CountIntra:    1,
			EstimatedBits: 256,
			Error:         60,
			NormMotion:    0.25,
			UnifiedV2:     0.3,
			MVStats:       models.MVStats{MeanMagnitude: 1.5, MaxMagnitude: 3, ZeroMVCount: 1, TotalMVCount: 4},
		},
	}

	require.NoError(t, repo.InsertFrameRecords(ctx, analysis.ID, frames))

	count, err := repo.CountFrameRecords(ctx, analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := repo.GetFrameRecords(ctx, analysis.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, models.FrameTypeI, stored[0].Type)
	assert.Equal(t, models.FrameTypeP, stored[1].Type)
	assert.Equal(t, int64(512), stored[0].EstimatedBits)
	assert.InDelta(t, 1.5, stored[1].MVStats.MeanMagnitude, 1e-9)

	// Pagination
	page, err := repo.GetFrameRecords(ctx, analysis.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 1, page[0].FrameNum)

	gops := []models.GOPRecord{
		{GOPNum: 0, StartFrame: 0, EndFrame: 1, TotalBits: 768, AvgComplexity: 0.35, IFrameCount: 1, PFrameCount: 1},
	}
	require.NoError(t, repo.InsertGOPRecords(ctx, analysis.ID, gops))

	storedGOPs, err := repo.GetGOPRecords(ctx, analysis.ID)
	require.NoError(t, err)
	require.Len(t, storedGOPs, 1)
	assert.Equal(t, int64(768), storedGOPs[0].TotalBits)
	assert.Equal(t, 2, storedGOPs[0].FrameCount())
}
