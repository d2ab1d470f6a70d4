package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Health reports whether the underlying pool can reach the database
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Analyses

// CreateAnalysis creates a new analysis record
func (r *Repository) CreateAnalysis(ctx context.Context, analysis *models.Analysis) error {
	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}

	query := `
		INSERT INTO analyses (id, source_key, status, config, total_frames, total_bits,
		                      avg_complexity, report_key, error_msg, worker_id, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		analysis.ID, analysis.SourceKey, analysis.Status, analysis.Config,
		analysis.TotalFrames, analysis.TotalBits, analysis.AvgComplexity,
		analysis.ReportKey, analysis.ErrorMsg, analysis.WorkerID, analysis.RetryCount,
	).Scan(&analysis.CreatedAt, &analysis.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}

	return nil
}

// GetAnalysis retrieves an analysis by ID
func (r *Repository) GetAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	var analysis models.Analysis

	query := `
		SELECT id, source_key, status, config, total_frames, total_bits, avg_complexity,
		       report_key, error_msg, worker_id, retry_count, started_at, completed_at,
		       created_at, updated_at
		FROM analyses
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&analysis.ID, &analysis.SourceKey, &analysis.Status, &analysis.Config,
		&analysis.TotalFrames, &analysis.TotalBits, &analysis.AvgComplexity,
		&analysis.ReportKey, &analysis.ErrorMsg, &analysis.WorkerID, &analysis.RetryCount,
		&analysis.StartedAt, &analysis.CompletedAt, &analysis.CreatedAt, &analysis.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return &analysis, nil
}

// UpdateAnalysis updates an analysis record
func (r *Repository) UpdateAnalysis(ctx context.Context, analysis *models.Analysis) error {
	query := `
		UPDATE analyses
		SET status = $2, config = $3, total_frames = $4, total_bits = $5,
		    avg_complexity = $6, report_key = $7, error_msg = $8, worker_id = $9,
		    retry_count = $10, started_at = $11, completed_at = $12, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		analysis.ID, analysis.Status, analysis.Config, analysis.TotalFrames,
		analysis.TotalBits, analysis.AvgComplexity, analysis.ReportKey,
		analysis.ErrorMsg, analysis.WorkerID, analysis.RetryCount,
		analysis.StartedAt, analysis.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}

	return nil
}

// UpdateAnalysisStatus updates only the status of an analysis
func (r *Repository) UpdateAnalysisStatus(ctx context.Context, id, status string) error {
	query := `UPDATE analyses SET status = $2, updated_at = NOW() WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update analysis status: %w", err)
	}

	return nil
}

// MarkAnalysisStarted records that a worker picked up the analysis
func (r *Repository) MarkAnalysisStarted(ctx context.Context, id, workerID string) error {
	query := `
		UPDATE analyses
		SET status = $2, worker_id = $3, started_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, models.AnalysisStatusProcessing, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark analysis started: %w", err)
	}

	return nil
}

// MarkAnalysisCompleted records the final aggregates and the stored report key
func (r *Repository) MarkAnalysisCompleted(ctx context.Context, id string, totalFrames int, totalBits int64, avgComplexity float64, reportKey string) error {
	query := `
		UPDATE analyses
		SET status = $2, total_frames = $3, total_bits = $4, avg_complexity = $5,
		    report_key = $6, error_msg = '', completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		id, models.AnalysisStatusCompleted, totalFrames, totalBits, avgComplexity, reportKey,
	)
	if err != nil {
		return fmt.Errorf("failed to mark analysis completed: %w", err)
	}

	return nil
}

// MarkAnalysisFailed records a terminal failure with its reason
func (r *Repository) MarkAnalysisFailed(ctx context.Context, id, errorMsg string) error {
	query := `
		UPDATE analyses
		SET status = $2, error_msg = $3, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query, id, models.AnalysisStatusFailed, errorMsg)
	if err != nil {
		return fmt.Errorf("failed to mark analysis failed: %w", err)
	}

	return nil
}

// IncrementAnalysisRetry bumps the retry counter when a job is requeued
func (r *Repository) IncrementAnalysisRetry(ctx context.Context, id string) error {
	query := `UPDATE analyses SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}

	return nil
}

// ListAnalyses retrieves analyses with pagination, newest first
func (r *Repository) ListAnalyses(ctx context.Context, limit, offset int) ([]*models.Analysis, error) {
	query := `
		SELECT id, source_key, status, config, total_frames, total_bits, avg_complexity,
		       report_key, error_msg, worker_id, retry_count, started_at, completed_at,
		       created_at, updated_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*models.Analysis
	for rows.Next() {
		var analysis models.Analysis
		err := rows.Scan(
			&analysis.ID, &analysis.SourceKey, &analysis.Status, &analysis.Config,
			&analysis.TotalFrames, &analysis.TotalBits, &analysis.AvgComplexity,
			&analysis.ReportKey, &analysis.ErrorMsg, &analysis.WorkerID, &analysis.RetryCount,
			&analysis.StartedAt, &analysis.CompletedAt, &analysis.CreatedAt, &analysis.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, &analysis)
	}

	return analyses, nil
}

// Frame records

// InsertFrameRecords stores per-frame results in one batch round trip
func (r *Repository) InsertFrameRecords(ctx context.Context, analysisID string, frames []models.FrameRecord) error {
	if len(frames) == 0 {
		return nil
	}

	query := `
		INSERT INTO frame_records (analysis_id, frame_num, frame_type, count_intra,
		                           count_inter_p, count_inter_b, estimated_bits, error,
		                           spatial_variance, motion_magnitude, ac_energy,
		                           bits_per_pixel, norm_spatial, norm_motion,
		                           norm_residual, norm_error, unified_v1, unified_v2,
		                           mv_stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	batch := &pgx.Batch{}
	for _, f := range frames {
		batch.Queue(query,
			analysisID, f.FrameNum, string(f.Type), f.CountIntra, f.CountInterP,
			f.CountInterB, f.EstimatedBits, f.Error, f.SpatialVariance,
			f.MotionMagnitude, f.ACEnergy, f.BitsPerPixel, f.NormSpatial,
			f.NormMotion, f.NormResidual, f.NormError, f.UnifiedV1, f.UnifiedV2,
			f.MVStats,
		)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range frames {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert frame record: %w", err)
		}
	}

	return nil
}

// GetFrameRecords retrieves frame records in display order with pagination
func (r *Repository) GetFrameRecords(ctx context.Context, analysisID string, limit, offset int) ([]models.FrameRecord, error) {
	query := `
		SELECT frame_num, frame_type, count_intra, count_inter_p, count_inter_b,
		       estimated_bits, error, spatial_variance, motion_magnitude, ac_energy,
		       bits_per_pixel, norm_spatial, norm_motion, norm_residual, norm_error,
		       unified_v1, unified_v2, mv_stats
		FROM frame_records
		WHERE analysis_id = $1
		ORDER BY frame_num
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, analysisID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get frame records: %w", err)
	}
	defer rows.Close()

	var frames []models.FrameRecord
	for rows.Next() {
		var f models.FrameRecord
		var frameType string
		err := rows.Scan(
			&f.FrameNum, &frameType, &f.CountIntra, &f.CountInterP, &f.CountInterB,
			&f.EstimatedBits, &f.Error, &f.SpatialVariance, &f.MotionMagnitude,
			&f.ACEnergy, &f.BitsPerPixel, &f.NormSpatial, &f.NormMotion,
			&f.NormResidual, &f.NormError, &f.UnifiedV1, &f.UnifiedV2, &f.MVStats,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame record: %w", err)
		}
		f.Type = models.FrameType(frameType)
		frames = append(frames, f)
	}

	return frames, nil
}

// CountFrameRecords returns the number of stored frame records for an analysis
func (r *Repository) CountFrameRecords(ctx context.Context, analysisID string) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM frame_records WHERE analysis_id = $1`

	if err := r.db.Pool.QueryRow(ctx, query, analysisID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count frame records: %w", err)
	}

	return count, nil
}

// GOP records

// InsertGOPRecords stores per-GOP aggregates in one batch round trip
func (r *Repository) InsertGOPRecords(ctx context.Context, analysisID string, gops []models.GOPRecord) error {
	if len(gops) == 0 {
		return nil
	}

	query := `
		INSERT INTO gop_records (analysis_id, gop_num, start_frame, end_frame,
		                         total_bits, avg_complexity, i_frame_count,
		                         p_frame_count, b_frame_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	batch := &pgx.Batch{}
	for _, g := range gops {
		batch.Queue(query,
			analysisID, g.GOPNum, g.StartFrame, g.EndFrame, g.TotalBits,
			g.AvgComplexity, g.IFrameCount, g.PFrameCount, g.BFrameCount,
		)
	}

	results := r.db.Pool.SendBatch(ctx, batch)
	defer results.Close()

	for range gops {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert gop record: %w", err)
		}
	}

	return nil
}

// GetGOPRecords retrieves all GOP aggregates for an analysis in order
func (r *Repository) GetGOPRecords(ctx context.Context, analysisID string) ([]models.GOPRecord, error) {
	query := `
		SELECT gop_num, start_frame, end_frame, total_bits, avg_complexity,
		       i_frame_count, p_frame_count, b_frame_count
		FROM gop_records
		WHERE analysis_id = $1
		ORDER BY gop_num
	`

	rows, err := r.db.Pool.Query(ctx, query, analysisID)
	if err != nil {
		return nil, fmt.Errorf("failed to get gop records: %w", err)
	}
	defer rows.Close()

	var gops []models.GOPRecord
	for rows.Next() {
		var g models.GOPRecord
		err := rows.Scan(
			&g.GOPNum, &g.StartFrame, &g.EndFrame, &g.TotalBits,
			&g.AvgComplexity, &g.IFrameCount, &g.PFrameCount, &g.BFrameCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gop record: %w", err)
		}
		gops = append(gops, g)
	}

	return gops, nil
}
