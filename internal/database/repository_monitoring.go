package database

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// Monitoring-related repository methods

// GetAnalysisStats returns aggregate counts over all analyses
func (r *Repository) GetAnalysisStats(ctx context.Context) (total, completed, failed, processing int64, err error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'processing') as processing
		FROM analyses
	`

	err = r.db.Pool.QueryRow(ctx, query).Scan(&total, &completed, &failed, &processing)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to get analysis stats: %w", err)
	}

	return total, completed, failed, processing, nil
}

// GetAverageWaitTime returns the average seconds from submission to pickup
func (r *Repository) GetAverageWaitTime(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (started_at - created_at))), 0)
		FROM analyses
		WHERE started_at IS NOT NULL
		AND created_at > NOW() - INTERVAL '24 hours'
	`

	var avgWaitTime float64
	err := r.db.Pool.QueryRow(ctx, query).Scan(&avgWaitTime)
	if err != nil {
		return 0, fmt.Errorf("failed to get average wait time: %w", err)
	}

	return avgWaitTime, nil
}

// GetAverageProcessTime returns the average seconds a completed analysis took
func (r *Repository) GetAverageProcessTime(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))), 0)
		FROM analyses
		WHERE started_at IS NOT NULL
		AND completed_at IS NOT NULL
		AND status = 'completed'
		AND created_at > NOW() - INTERVAL '24 hours'
	`

	var avgProcessTime float64
	err := r.db.Pool.QueryRow(ctx, query).Scan(&avgProcessTime)
	if err != nil {
		return 0, fmt.Errorf("failed to get average process time: %w", err)
	}

	return avgProcessTime, nil
}

// GetActiveWorkers returns the number of workers seen recently
func (r *Repository) GetActiveWorkers(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(DISTINCT worker_id)
		FROM analyses
		WHERE worker_id IS NOT NULL
		AND worker_id != ''
		AND updated_at > NOW() - INTERVAL '5 minutes'
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get active workers: %w", err)
	}

	return count, nil
}

// GetAnalysesByStatus returns count of analyses grouped by status
func (r *Repository) GetAnalysesByStatus(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM analyses
		GROUP BY status
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get analyses by status: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats[status] = count
	}

	return stats, nil
}

// GetStalledAnalyses returns analyses stuck in flight. An analysis counts
// as stalled once it sat in queued or processing past the cutoff without a
// status change, which happens when a worker dies mid-job or the broker
// drops the delivery.
func (r *Repository) GetStalledAnalyses(ctx context.Context, cutoff time.Time, limit int) ([]*models.Analysis, error) {
	query := `
		SELECT id, source_key, status, config, total_frames, total_bits, avg_complexity,
		       report_key, error_msg, worker_id, retry_count, started_at, completed_at,
		       created_at, updated_at
		FROM analyses
		WHERE status IN ('queued', 'processing')
		AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get stalled analyses: %w", err)
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

// GetRecentFailedAnalyses returns the most recently failed analyses
func (r *Repository) GetRecentFailedAnalyses(ctx context.Context, limit int) ([]*models.Analysis, error) {
	query := `
		SELECT id, source_key, status, config, total_frames, total_bits, avg_complexity,
		       report_key, error_msg, worker_id, retry_count, started_at, completed_at,
		       created_at, updated_at
		FROM analyses
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent failed analyses: %w", err)
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
