package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/database"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/metrics"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/report"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// reportURLCacheTTL keeps cached presigned URLs comfortably inside
// their one hour validity.
const reportURLCacheTTL = 30 * time.Minute

// Submit analysis endpoint. The request is a multipart form carrying
// the source file plus optional analysis parameters; defaults apply on
// the worker side. Sources too large for one request go through the
// chunked upload endpoints instead.
func (api *API) submitAnalysis(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	analysisConfig, err := parseAnalysisForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Save to temporary location
	tempPath := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	api.startAnalysis(c, tempPath, file.Filename, file.Size, analysisConfig)
}

// startAnalysis uploads a local source file, records the analysis and
// queues the job. It writes the HTTP response and reports whether the
// submission was accepted.
func (api *API) startAnalysis(c *gin.Context, localPath, originalName string, size int64, analysisConfig models.AnalysisConfig) bool {
	// The object key keeps the original extension so the worker picks
	// the right reader.
	analysisID := uuid.New().String()
	sourceKey := analysisID + filepath.Ext(originalName)

	uploadStart := time.Now()
	if err := api.storage.UploadSourceFileParallel(c.Request.Context(), sourceKey, localPath); err != nil {
		metrics.RecordStorageOperation("upload_source", "error", time.Since(uploadStart).Seconds(), 0)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to upload: %v", err)})
		return false
	}
	metrics.RecordStorageOperation("upload_source", "success", time.Since(uploadStart).Seconds(), size)
	api.log.LogStorageOperation("upload", api.cfg.Storage.SourceBucket, sourceKey, size, time.Since(uploadStart), nil)

	// Save to database
	analysis := &models.Analysis{
		ID:        analysisID,
		SourceKey: sourceKey,
		Status:    models.AnalysisStatusPending,
		Config:    analysisConfig,
	}
	if err := api.repo.CreateAnalysis(c.Request.Context(), analysis); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create analysis: %v", err)})
		return false
	}

	// Publish to queue
	job := &models.AnalysisJob{
		ID:         uuid.New().String(),
		AnalysisID: analysisID,
		SourceKey:  sourceKey,
		Config:     analysisConfig,
		CreatedAt:  time.Now().UTC(),
	}
	if err := api.queue.PublishJob(c.Request.Context(), job); err != nil {
		api.repo.UpdateAnalysisStatus(c.Request.Context(), analysisID, models.AnalysisStatusFailed)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue analysis: %v", err)})
		return false
	}
	if err := api.repo.UpdateAnalysisStatus(c.Request.Context(), analysisID, models.AnalysisStatusQueued); err != nil {
		api.log.WithError(err).WithAnalysisID(analysisID).Warn("failed to mark analysis queued")
	}
	analysis.Status = models.AnalysisStatusQueued

	if depth, err := api.queue.GetQueueDepth(); err == nil {
		metrics.UpdateQueueDepth(depth)
	}
	if err := api.cache.IncrementStat(c.Request.Context(), "analyses_submitted"); err != nil {
		api.log.WithError(err).Debug("failed to increment submission stat")
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":         analysisID,
		"status":     analysis.Status,
		"source_key": sourceKey,
	})
	return true
}

// Get analysis endpoint. Completed analyses carry the cached GOP-level
// summary when available; on a cache miss the summary is rebuilt from
// the database and cached again.
func (api *API) getAnalysis(c *gin.Context) {
	id := c.Param("id")

	analysis, err := api.repo.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"analysis": analysis}
	if analysis.Status == models.AnalysisStatusCompleted {
		if summary := api.loadSummary(c, analysis); summary != nil {
			resp["summary"] = summary
		}
	}

	c.JSON(http.StatusOK, resp)
}

// loadSummary fetches the GOP-level summary, falling back to the
// database when the cached copy expired.
func (api *API) loadSummary(c *gin.Context, analysis *models.Analysis) *models.AnalysisResults {
	ctx := c.Request.Context()

	summary, err := api.cache.GetSummary(ctx, analysis.ID)
	if err == nil && summary != nil {
		metrics.RecordCacheAccess("summary", true)
		return summary
	}
	metrics.RecordCacheAccess("summary", false)

	gops, err := api.repo.GetGOPRecords(ctx, analysis.ID)
	if err != nil || len(gops) == 0 {
		return nil
	}

	summary = &models.AnalysisResults{
		Metadata: models.VideoMetadata{
			Width:         analysis.Config.Width,
			Height:        analysis.Config.Height,
			TotalFrames:   analysis.TotalFrames,
			GOPSize:       analysis.Config.GOPSize,
			BFrames:       analysis.Config.BFrames,
			InputFilename: analysis.SourceKey,
			Version:       models.AnalysisVersion,
		},
		GOPs: gops,
	}
	if err := api.cache.SetSummary(ctx, analysis.ID, summary, api.cfg.Worker.ResultCacheTTL); err != nil {
		api.log.WithError(err).Debug("failed to refresh summary cache")
	}
	return summary
}

// List analyses endpoint
func (api *API) listAnalyses(c *gin.Context) {
	limit, offset, err := parsePagination(c, 20, 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analyses, err := api.repo.ListAnalyses(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses": analyses,
		"limit":    limit,
		"offset":   offset,
	})
}

// Get frame records endpoint, paginated in display order.
func (api *API) getFrameRecords(c *gin.Context) {
	id := c.Param("id")

	limit, offset, err := parsePagination(c, 100, 1000)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := api.repo.GetAnalysis(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	frames, err := api.repo.GetFrameRecords(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := api.repo.CountFrameRecords(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"frames": frames,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get GOP records endpoint
func (api *API) getGOPRecords(c *gin.Context) {
	id := c.Param("id")

	if _, err := api.repo.GetAnalysis(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	gops, err := api.repo.GetGOPRecords(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"gops": gops})
}

// Get report URL endpoint. Returns a presigned download URL for the
// rendered report of a completed analysis.
func (api *API) getReportURL(c *gin.Context) {
	id := c.Param("id")

	analysis, err := api.repo.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if analysis.Status != models.AnalysisStatusCompleted || analysis.ReportKey == "" {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Analysis is %s, report not available", analysis.Status)})
		return
	}

	format := reportFormat(analysis.ReportKey)
	if url, err := api.cache.GetReportURL(c.Request.Context(), id, format); err == nil && url != "" {
		metrics.RecordCacheAccess("report_url", true)
		c.JSON(http.StatusOK, gin.H{"url": url, "format": format})
		return
	}
	metrics.RecordCacheAccess("report_url", false)

	url, err := api.storage.ReportURL(c.Request.Context(), analysis.ReportKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to presign report: %v", err)})
		return
	}
	if err := api.cache.SetReportURL(c.Request.Context(), id, format, url, reportURLCacheTTL); err != nil {
		api.log.WithError(err).Debug("failed to cache report url")
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "format": format})
}

// Get service statistics endpoint
func (api *API) getStats(c *gin.Context) {
	ctx := c.Request.Context()

	total, completed, failed, processing, err := api.repo.GetAnalysisStats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stats := gin.H{
		"total":      total,
		"completed":  completed,
		"failed":     failed,
		"processing": processing,
	}

	if avg, err := api.repo.GetAverageProcessTime(ctx); err == nil {
		stats["avg_process_seconds"] = avg
	}
	if workers, err := api.repo.GetActiveWorkers(ctx); err == nil {
		stats["active_workers"] = workers
	}
	if depth, err := api.queue.GetQueueDepth(); err == nil {
		stats["queue_depth"] = depth
		metrics.UpdateQueueDepth(depth)
	}
	if submitted, err := api.cache.GetStat(ctx, "analyses_submitted"); err == nil {
		stats["submitted"] = submitted
	}

	c.JSON(http.StatusOK, stats)
}

// parseAnalysisForm reads the optional analysis parameters from the
// multipart form. Zero values defer to the worker defaults.
func parseAnalysisForm(c *gin.Context) (models.AnalysisConfig, error) {
	var cfg models.AnalysisConfig
	var err error

	if cfg.Width, err = formInt(c, "width"); err != nil {
		return cfg, err
	}
	if cfg.Height, err = formInt(c, "height"); err != nil {
		return cfg, err
	}
	if cfg.NumFrames, err = formInt(c, "num_frames"); err != nil {
		return cfg, err
	}
	if cfg.GOPSize, err = formInt(c, "gop_size"); err != nil {
		return cfg, err
	}
	if cfg.BFrames, err = formInt(c, "bframes"); err != nil {
		return cfg, err
	}

	cfg.Format = c.PostForm("format")
	cfg.Detail = c.PostForm("detail")
	cfg.ScoreVersion = c.PostForm("score_version")

	if v := c.PostForm("ac_compensation"); v != "" {
		cfg.ACCompensation, err = strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid ac_compensation value: %s", v)
		}
	}

	if cfg.Weights.Spatial, err = formFloat(c, "weight_spatial"); err != nil {
		return cfg, err
	}
	if cfg.Weights.Motion, err = formFloat(c, "weight_motion"); err != nil {
		return cfg, err
	}
	if cfg.Weights.Residual, err = formFloat(c, "weight_residual"); err != nil {
		return cfg, err
	}
	if cfg.Weights.Error, err = formFloat(c, "weight_error"); err != nil {
		return cfg, err
	}

	return cfg, validateAnalysisConfig(cfg)
}

// validateAnalysisConfig checks user-supplied analysis parameters.
// Zero values pass; the worker fills defaults from the source header.
func validateAnalysisConfig(cfg models.AnalysisConfig) error {
	if cfg.Width < 0 || cfg.Height < 0 || cfg.NumFrames < 0 || cfg.GOPSize < 0 || cfg.BFrames < 0 {
		return errors.New("analysis parameters must not be negative")
	}

	switch cfg.Format {
	case "", report.FormatCSV, report.FormatJSON, report.FormatXML:
	default:
		return fmt.Errorf("unknown output format: %s. Valid formats: csv, json, xml", cfg.Format)
	}

	switch cfg.Detail {
	case "", report.DetailFrame, report.DetailGOP:
	default:
		return fmt.Errorf("unknown detail level: %s. Valid levels: frame, gop", cfg.Detail)
	}

	switch cfg.ScoreVersion {
	case "", models.ScoreVersionV1, models.ScoreVersionV2:
	default:
		return fmt.Errorf("unknown score version: %s. Valid versions: v1, v2", cfg.ScoreVersion)
	}

	if cfg.Weights.Spatial < 0 || cfg.Weights.Motion < 0 || cfg.Weights.Residual < 0 || cfg.Weights.Error < 0 {
		return errors.New("complexity weights must not be negative")
	}

	return nil
}

func formInt(c *gin.Context, name string) (int, error) {
	v := c.PostForm(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, v)
	}
	return n, nil
}

func formFloat(c *gin.Context, name string) (float64, error) {
	v := c.PostForm(name)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, v)
	}
	return f, nil
}

// parsePagination reads limit and offset query parameters, applying the
// default and clamping to the maximum.
func parsePagination(c *gin.Context, def, max int) (limit, offset int, err error) {
	limit = def
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid limit value: %s", v)
		}
		if limit > max {
			limit = max
		}
	}
	if v := c.Query("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset value: %s", v)
		}
	}
	return limit, offset, nil
}

// reportFormat derives the report format from the stored object key.
func reportFormat(reportKey string) string {
	ext := filepath.Ext(reportKey)
	if ext == "" {
		return report.FormatCSV
	}
	return ext[1:]
}
