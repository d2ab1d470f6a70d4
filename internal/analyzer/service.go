package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/cache"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/config"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/database"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/metrics"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/reader"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/report"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/score"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/storage"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/tracing"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// sourceLockTTL bounds how long one worker may hold the per-source
// idempotency lock. It must exceed the longest plausible analysis.
const sourceLockTTL = 30 * time.Minute

// Notifier receives analysis lifecycle events. Events mirror the status
// transitions recorded on the analysis row, so a retried job emits
// started and failed once per attempt.
type Notifier interface {
	NotifyAnalysisStarted(ctx context.Context, analysis *models.Analysis) error
	NotifyAnalysisCompleted(ctx context.Context, analysis *models.Analysis) error
	NotifyAnalysisFailed(ctx context.Context, analysis *models.Analysis) error
}

// Service processes queued analysis jobs end to end: download the
// source, run the analyzer, persist the records, render and upload the
// report.
type Service struct {
	cfg      config.WorkerConfig
	defaults config.AnalyzerConfig
	repo     *database.Repository
	storage  *storage.OptimizedStorage
	cache    *cache.Cache
	log      *logging.Logger
	notifier Notifier
	workerID string
}

// NewService creates a new analysis service
func NewService(
	cfg config.WorkerConfig,
	defaults config.AnalyzerConfig,
	repo *database.Repository,
	stor *storage.OptimizedStorage,
	c *cache.Cache,
	log *logging.Logger,
) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Service{
		cfg:      cfg,
		defaults: defaults,
		repo:     repo,
		storage:  stor,
		cache:    c,
		log:      log,
		workerID: uuid.New().String(),
	}
}

// WorkerID returns the identifier this service stamps on claimed
// analyses.
func (s *Service) WorkerID() string {
	return s.workerID
}

// SetNotifier wires lifecycle notifications; nil disables them.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// ProcessJob processes one analysis job
func (s *Service) ProcessJob(ctx context.Context, job *models.AnalysisJob) error {
	span, ctx := tracing.StartSpan(ctx, "analysis.job")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "analysis.id", job.AnalysisID)
	tracing.SetTag(span, "source.key", job.SourceKey)
	tracing.SetTag(span, "retry.count", job.RetryCount)

	log := s.log.WithAnalysisID(job.AnalysisID).WithWorkerID(s.workerID)
	started := time.Now()

	// Redelivered jobs for finished analyses are acked without work.
	analysis, err := s.repo.GetAnalysis(ctx, job.AnalysisID)
	if err != nil {
		tracing.LogError(span, err)
		return fmt.Errorf("failed to get analysis: %w", err)
	}
	if analysis.Status == models.AnalysisStatusCompleted {
		log.Info("analysis already completed, skipping redelivered job")
		return nil
	}

	// One worker per source at a time. A held lock means a concurrent
	// delivery of the same source; sending this job through the retry
	// queue lets the holder finish first.
	lockKey := "source:" + job.SourceKey
	locked, err := s.cache.AcquireLock(ctx, lockKey, sourceLockTTL)
	if err != nil {
		log.WithError(err).Warn("idempotency lock unavailable, proceeding without it")
	} else if !locked {
		return fmt.Errorf("source %s is locked by another worker", job.SourceKey)
	} else {
		defer s.cache.ReleaseLock(ctx, lockKey)
	}

	if err := s.repo.MarkAnalysisStarted(ctx, job.AnalysisID, s.workerID); err != nil {
		tracing.LogError(span, err)
		return fmt.Errorf("failed to mark analysis started: %w", err)
	}
	metrics.RecordAnalysisStarted()
	if s.notifier != nil {
		s.notify(ctx, log, job.AnalysisID, s.notifier.NotifyAnalysisStarted)
	}

	// Create temporary directory
	tempDir := filepath.Join(s.cfg.TempDir, job.ID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return s.fail(ctx, span, log, job, started, fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer os.RemoveAll(tempDir)

	// Download source
	inputPath, err := s.downloadSource(ctx, job, tempDir)
	if err != nil {
		return s.fail(ctx, span, log, job, started, err)
	}

	// Analyze
	frames, meta, err := s.analyze(ctx, job, inputPath)
	if err != nil {
		return s.fail(ctx, span, log, job, started, err)
	}
	if len(frames) == 0 {
		return s.fail(ctx, span, log, job, started, fmt.Errorf("source %s yielded no analyzable frames", job.SourceKey))
	}

	scoreVersion := s.scoreVersion(job.Config)
	results := report.Convert(frames, meta, scoreVersion)

	// Persist records
	if err := s.store(ctx, job, results); err != nil {
		return s.fail(ctx, span, log, job, started, err)
	}

	// Render and upload the report
	reportKey, err := s.publishReport(ctx, job, results)
	if err != nil {
		return s.fail(ctx, span, log, job, started, err)
	}

	totalBits, avgComplexity := summarize(frames, scoreVersion)
	if err := s.repo.MarkAnalysisCompleted(ctx, job.AnalysisID, len(frames), totalBits, avgComplexity, reportKey); err != nil {
		return fmt.Errorf("failed to mark analysis completed: %w", err)
	}

	// Cache the GOP-level summary for status queries. Frame records
	// stay in the database; the cached copy drops them to keep values
	// small.
	if err := s.cache.SetSummary(ctx, job.AnalysisID, trimmed(results), s.cfg.ResultCacheTTL); err != nil {
		log.WithError(err).Warn("failed to cache analysis summary")
	}

	if s.notifier != nil {
		s.notify(ctx, log, job.AnalysisID, s.notifier.NotifyAnalysisCompleted)
	}

	duration := time.Since(started)
	metrics.RecordAnalysisCompleted(models.AnalysisStatusCompleted, duration.Seconds(), len(frames))
	log.LogAnalysisSummary(job.AnalysisID, len(frames), totalBits, avgComplexity, duration)
	return nil
}

// downloadSource fetches the job's source object into tempDir and
// returns the local path, preserving the object extension so reader
// selection still works.
func (s *Service) downloadSource(ctx context.Context, job *models.AnalysisJob, tempDir string) (string, error) {
	span, ctx := tracing.StartSpan(ctx, "analysis.download")
	defer tracing.FinishSpan(span)

	started := time.Now()
	inputPath, err := s.storage.DownloadSourceToTemp(ctx, job.SourceKey, tempDir)
	if err != nil {
		tracing.LogError(span, err)
		metrics.RecordStorageOperation("download", "error", time.Since(started).Seconds(), 0)
		return "", fmt.Errorf("failed to download source: %w", err)
	}

	var size int64
	if info, err := os.Stat(inputPath); err == nil {
		size = info.Size()
	}
	tracing.SetTag(span, "source.bytes", size)
	metrics.RecordStorageOperation("download", "success", time.Since(started).Seconds(), size)
	return inputPath, nil
}

// analyze runs the complexity analysis over the downloaded source and
// returns the display-ordered frame records plus the sequence metadata.
func (s *Service) analyze(ctx context.Context, job *models.AnalysisJob, inputPath string) ([]models.FrameRecord, models.VideoMetadata, error) {
	span, ctx := tracing.StartSpan(ctx, "analysis.run")
	defer tracing.FinishSpan(span)

	var meta models.VideoMetadata

	opts := reader.Options{
		Width:       job.Config.Width,
		Height:      job.Config.Height,
		FFmpegPath:  s.cfg.FFmpegPath,
		FFprobePath: s.cfg.FFprobePath,
	}
	src, err := reader.Open(ctx, inputPath, opts)
	if err != nil {
		tracing.LogError(span, err)
		return nil, meta, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	acfg := s.analyzerConfig(job.Config)
	a, err := New(src, acfg, s.log.WithAnalysisID(job.AnalysisID))
	if err != nil {
		tracing.LogError(span, err)
		return nil, meta, fmt.Errorf("failed to configure analyzer: %w", err)
	}

	started := time.Now()
	frames, err := a.Run()
	if err != nil {
		tracing.LogError(span, err)
		return nil, meta, fmt.Errorf("analysis failed: %w", err)
	}
	elapsed := time.Since(started)

	fps := 0.0
	if elapsed > 0 {
		fps = float64(len(frames)) / elapsed.Seconds()
	}
	s.log.LogAnalysisProgress(job.AnalysisID, len(frames), fps)
	if err := s.cache.SetAnalysisProgress(ctx, job.AnalysisID, 100, s.cfg.ResultCacheTTL); err != nil {
		s.log.WithError(err).Debug("failed to cache analysis progress")
	}

	scoreVersion := s.scoreVersion(job.Config)
	for _, f := range frames {
		metrics.RecordFrameAnalyzed(string(f.Type), unifiedScore(f, scoreVersion), f.EstimatedBits)
	}
	tracing.SetTag(span, "frames", len(frames))

	w, h := src.Dimensions()
	meta = models.VideoMetadata{
		Width:         w,
		Height:        h,
		GOPSize:       acfg.GOPSize,
		BFrames:       acfg.BFrames,
		InputFormat:   reader.FormatForPath(inputPath, opts),
		InputFilename: job.SourceKey,
		AnalysisTime:  time.Now().UTC(),
		Version:       models.AnalysisVersion,
	}
	return frames, meta, nil
}

// store batch-inserts the frame and GOP records.
func (s *Service) store(ctx context.Context, job *models.AnalysisJob, results *models.AnalysisResults) error {
	span, ctx := tracing.StartSpan(ctx, "analysis.store")
	defer tracing.FinishSpan(span)

	started := time.Now()
	if err := s.repo.InsertFrameRecords(ctx, job.AnalysisID, results.Frames); err != nil {
		tracing.LogError(span, err)
		metrics.RecordDatabaseOperation("insert_frame_records", "error", time.Since(started).Seconds())
		return fmt.Errorf("failed to insert frame records: %w", err)
	}
	if err := s.repo.InsertGOPRecords(ctx, job.AnalysisID, results.GOPs); err != nil {
		tracing.LogError(span, err)
		metrics.RecordDatabaseOperation("insert_gop_records", "error", time.Since(started).Seconds())
		return fmt.Errorf("failed to insert gop records: %w", err)
	}
	metrics.RecordDatabaseOperation("insert_records", "success", time.Since(started).Seconds())
	s.log.LogDatabaseOperation("insert_records", time.Since(started), nil)
	return nil
}

// publishReport renders the configured report format and uploads it,
// returning the report object key.
func (s *Service) publishReport(ctx context.Context, job *models.AnalysisJob, results *models.AnalysisResults) (string, error) {
	span, ctx := tracing.StartSpan(ctx, "analysis.report")
	defer tracing.FinishSpan(span)

	format := s.format(job.Config)
	detail := s.detail(job.Config)
	w, err := report.New(format, detail, s.scoreVersion(job.Config))
	if err != nil {
		tracing.LogError(span, err)
		return "", fmt.Errorf("failed to configure report writer: %w", err)
	}

	var buf bytes.Buffer
	if err := w.Write(&buf, results); err != nil {
		tracing.LogError(span, err)
		return "", fmt.Errorf("failed to render report: %w", err)
	}

	reportKey := fmt.Sprintf("%s.%s", job.AnalysisID, format)
	started := time.Now()
	if err := s.storage.UploadReport(ctx, reportKey, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		tracing.LogError(span, err)
		metrics.RecordStorageOperation("upload_report", "error", time.Since(started).Seconds(), 0)
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	metrics.RecordStorageOperation("upload_report", "success", time.Since(started).Seconds(), int64(buf.Len()))
	tracing.SetTag(span, "report.key", reportKey)
	return reportKey, nil
}

// fail marks the analysis as failed and returns the original error so
// the queue layer routes the job into the retry flow.
func (s *Service) fail(ctx context.Context, span opentracing.Span, log *logging.Logger, job *models.AnalysisJob, started time.Time, err error) error {
	tracing.LogError(span, err)
	log.WithError(err).Error("analysis job failed")
	metrics.RecordAnalysisCompleted(models.AnalysisStatusFailed, time.Since(started).Seconds(), 0)
	metrics.RecordError("worker", "analysis")

	if updateErr := s.repo.MarkAnalysisFailed(ctx, job.AnalysisID, err.Error()); updateErr != nil {
		return fmt.Errorf("failed to update analysis: %w (original error: %v)", updateErr, err)
	}
	if s.notifier != nil {
		s.notify(ctx, log, job.AnalysisID, s.notifier.NotifyAnalysisFailed)
	}
	return err
}

// notify reloads the analysis row and hands it to the notifier.
// Notification problems never fail the job.
func (s *Service) notify(ctx context.Context, log *logging.Logger, analysisID string, send func(context.Context, *models.Analysis) error) {
	analysis, err := s.repo.GetAnalysis(ctx, analysisID)
	if err != nil {
		log.WithError(err).Warn("failed to load analysis for notification")
		return
	}
	if err := send(ctx, analysis); err != nil {
		log.WithError(err).Warn("failed to send lifecycle notification")
	}
}

// analyzerConfig merges the job's parameters over the worker defaults.
func (s *Service) analyzerConfig(jc models.AnalysisConfig) Config {
	cfg := Config{
		GOPSize:        jc.GOPSize,
		BFrames:        jc.BFrames,
		NumFrames:      jc.NumFrames,
		SearchRange:    s.defaults.SearchRange,
		ACCompensation: jc.ACCompensation,
		Weights: score.Weights{
			Spatial:  jc.Weights.Spatial,
			Motion:   jc.Weights.Motion,
			Residual: jc.Weights.Residual,
			Error:    jc.Weights.Error,
		},
		Trailing: TrailingPolicy(s.defaults.Trailing),
	}
	if cfg.GOPSize == 0 {
		cfg.GOPSize = s.defaults.GOPSize
	}
	if cfg.SearchRange == 0 {
		cfg.SearchRange = DefaultConfig().SearchRange
	}
	if cfg.Weights.Sum() == 0 {
		cfg.Weights = score.Weights{
			Spatial:  s.defaults.Weights.Spatial,
			Motion:   s.defaults.Weights.Motion,
			Residual: s.defaults.Weights.Residual,
			Error:    s.defaults.Weights.Error,
		}
	}
	if cfg.Weights.Sum() == 0 {
		cfg.Weights = score.DefaultWeights
	}
	return cfg
}

func (s *Service) scoreVersion(jc models.AnalysisConfig) string {
	if jc.ScoreVersion != "" {
		return jc.ScoreVersion
	}
	if s.defaults.ScoreVersion != "" {
		return s.defaults.ScoreVersion
	}
	return models.ScoreVersionV2
}

func (s *Service) format(jc models.AnalysisConfig) string {
	if jc.Format != "" {
		return jc.Format
	}
	if s.defaults.Format != "" {
		return s.defaults.Format
	}
	return report.FormatCSV
}

func (s *Service) detail(jc models.AnalysisConfig) string {
	if jc.Detail != "" {
		return jc.Detail
	}
	if s.defaults.Detail != "" {
		return s.defaults.Detail
	}
	return report.DetailFrame
}

// unifiedScore selects the complexity column for the score version.
func unifiedScore(f models.FrameRecord, version string) float64 {
	if version == models.ScoreVersionV1 {
		return f.UnifiedV1
	}
	return f.UnifiedV2
}

// trimmed copies results without the per-frame payloads. The database
// keeps the frames; the cached summary only needs metadata and GOP
// aggregates.
func trimmed(results *models.AnalysisResults) *models.AnalysisResults {
	gops := make([]models.GOPRecord, len(results.GOPs))
	for i, g := range results.GOPs {
		g.Frames = nil
		gops[i] = g
	}
	return &models.AnalysisResults{
		Metadata: results.Metadata,
		GOPs:     gops,
	}
}

// summarize computes the stream totals recorded on the analysis row.
func summarize(frames []models.FrameRecord, scoreVersion string) (totalBits int64, avgComplexity float64) {
	for _, f := range frames {
		totalBits += f.EstimatedBits
		avgComplexity += unifiedScore(f, scoreVersion)
	}
	if len(frames) > 0 {
		avgComplexity /= float64(len(frames))
	}
	return totalBits, avgComplexity
}
