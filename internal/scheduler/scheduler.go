// Package scheduler returns stalled analyses to the work queue. An
// analysis stalls in processing when its worker dies mid-job, or in
// queued when the broker drops the delivery; the sweeper requeues both
// so a crash never strands work forever.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/metrics"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

const (
	// DefaultInterval is how often the sweeper scans for stalled work
	DefaultInterval = 1 * time.Minute
	// DefaultStaleAfter is how long an analysis may sit in flight
	// without a status change before it counts as stalled
	DefaultStaleAfter = 15 * time.Minute
	// DefaultMaxAttempts matches the queue retry budget
	DefaultMaxAttempts = 5

	sweepBatchSize = 50
	sweepLockName  = "sweep"
)

// Repository defines the persistence the sweeper needs
type Repository interface {
	GetStalledAnalyses(ctx context.Context, cutoff time.Time, limit int) ([]*models.Analysis, error)
	IncrementAnalysisRetry(ctx context.Context, id string) error
	UpdateAnalysisStatus(ctx context.Context, id, status string) error
	MarkAnalysisFailed(ctx context.Context, id, errorMsg string) error
}

// JobPublisher defines the queue operations the sweeper needs
type JobPublisher interface {
	PublishJobWithRetry(ctx context.Context, job *models.AnalysisJob, retryCount int) error
}

// Locker serializes sweeps across worker instances
type Locker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
}

// Sweeper periodically requeues analyses stuck in flight
type Sweeper struct {
	repo        Repository
	publisher   JobPublisher
	locker      Locker
	log         *logging.Logger
	interval    time.Duration
	staleAfter  time.Duration
	maxAttempts int
}

// NewSweeper creates a sweeper. Zero durations and attempts fall back
// to the package defaults; a nil locker disables cross-instance
// serialization.
func NewSweeper(repo Repository, publisher JobPublisher, locker Locker, log *logging.Logger, interval, staleAfter time.Duration, maxAttempts int) *Sweeper {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Sweeper{
		repo:        repo,
		publisher:   publisher,
		locker:      locker,
		log:         log,
		interval:    interval,
		staleAfter:  staleAfter,
		maxAttempts: maxAttempts,
	}
}

// Start runs the sweep loop until the context ends
func (s *Sweeper) Start(ctx context.Context) {
	s.log.WithFields(map[string]interface{}{
		"interval":    s.interval.String(),
		"stale_after": s.staleAfter.String(),
	}).Info("Analysis sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Analysis sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Error("sweep failed")
			}
		}
	}
}

// Sweep requeues one batch of stalled analyses and reports how many it
// put back on the queue. Analyses past the retry budget are marked
// failed instead.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		locked, err := s.locker.AcquireLock(ctx, sweepLockName, s.interval)
		if err != nil {
			s.log.WithError(err).Warn("sweep lock unavailable, proceeding")
		} else if !locked {
			return 0, nil
		}
	}

	cutoff := time.Now().Add(-s.staleAfter)
	stalled, err := s.repo.GetStalledAnalyses(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled analyses: %w", err)
	}

	requeued := 0
	for _, analysis := range stalled {
		log := s.log.WithAnalysisID(analysis.ID)

		if analysis.RetryCount >= s.maxAttempts {
			msg := fmt.Sprintf("analysis stalled in %s after %d attempts", analysis.Status, analysis.RetryCount)
			if err := s.repo.MarkAnalysisFailed(ctx, analysis.ID, msg); err != nil {
				log.WithError(err).Error("failed to mark stalled analysis failed")
				continue
			}
			metrics.RecordError("sweeper", "stalled")
			log.WithField("retry_count", analysis.RetryCount).Warn("gave up on stalled analysis")
			continue
		}

		if err := s.repo.IncrementAnalysisRetry(ctx, analysis.ID); err != nil {
			log.WithError(err).Error("failed to bump analysis retry count")
			continue
		}

		job := &models.AnalysisJob{
			ID:         uuid.New().String(),
			AnalysisID: analysis.ID,
			SourceKey:  analysis.SourceKey,
			Config:     analysis.Config,
			RetryCount: analysis.RetryCount + 1,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.publisher.PublishJobWithRetry(ctx, job, job.RetryCount); err != nil {
			log.WithError(err).Error("failed to requeue stalled analysis")
			continue
		}

		if err := s.repo.UpdateAnalysisStatus(ctx, analysis.ID, models.AnalysisStatusQueued); err != nil {
			log.WithError(err).Warn("failed to mark requeued analysis queued")
		}

		log.WithFields(map[string]interface{}{
			"previous_status": analysis.Status,
			"retry_count":     job.RetryCount,
		}).Info("Requeued stalled analysis")
		requeued++
	}

	return requeued, nil
}
