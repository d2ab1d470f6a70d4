package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/motionscan/internal/logging"
	"github.com/therealutkarshpriyadarshi/motionscan/internal/metrics"
	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// retryDelays is the backoff ladder for failed deliveries. A delivery
// that exhausts the ladder is marked failed for good.
var retryDelays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	4 * time.Hour,
	12 * time.Hour,
}

// Repository defines the persistence the webhook service needs
type Repository interface {
	GetWebhooksByEvent(ctx context.Context, event string) ([]*models.Webhook, error)
	GetWebhook(ctx context.Context, id string) (*models.Webhook, error)
	CreateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	UpdateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	GetPendingWebhookDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error)
}

// Service posts analysis lifecycle events to registered endpoints and
// retries failed deliveries on a backoff schedule.
type Service struct {
	client *http.Client
	repo   Repository
	log    *logging.Logger
}

// NewService creates a new webhook service
func NewService(repo Repository, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}

	return &Service{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		repo: repo,
		log:  log,
	}
}

// Notify fans an event out to every active endpoint subscribed to it.
// Delivery happens in the background; only repository and encoding
// failures surface here.
func (s *Service) Notify(ctx context.Context, event string, data interface{}) error {
	webhooks, err := s.repo.GetWebhooksByEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to get webhooks: %w", err)
	}
	if len(webhooks) == 0 {
		return nil
	}

	payload, err := json.Marshal(models.WebhookEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for _, webhook := range webhooks {
		if !webhook.IsActive {
			continue
		}

		delivery := &models.WebhookDelivery{
			ID:        uuid.New().String(),
			WebhookID: webhook.ID,
			Event:     event,
			Payload:   string(payload),
			Status:    models.WebhookDeliveryStatusPending,
			CreatedAt: time.Now(),
		}

		if err := s.repo.CreateWebhookDelivery(ctx, delivery); err != nil {
			s.log.WithError(err).WithField("webhook_id", webhook.ID).Error("failed to record webhook delivery")
			continue
		}

		go s.deliver(context.Background(), webhook, delivery, payload)
	}

	return nil
}

// deliver posts one payload to one endpoint and records the outcome
func (s *Service) deliver(ctx context.Context, webhook *models.Webhook, delivery *models.WebhookDelivery, payload []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		s.markDeliveryFailed(ctx, delivery, 0, fmt.Sprintf("failed to create request: %v", err))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "motionscan-webhook/1.0")
	req.Header.Set("X-Webhook-Event", delivery.Event)
	req.Header.Set("X-Webhook-Delivery", delivery.ID)

	if webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Signature(payload, webhook.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.markDeliveryFailed(ctx, delivery, 0, fmt.Sprintf("failed to send request: %v", err))
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		now := time.Now()
		delivery.Status = models.WebhookDeliveryStatusDelivered
		delivery.StatusCode = resp.StatusCode
		delivery.ResponseBody = string(body)
		delivery.NextRetryAt = nil
		delivery.CompletedAt = &now

		if err := s.repo.UpdateWebhookDelivery(ctx, delivery); err != nil {
			s.log.WithError(err).WithField("delivery_id", delivery.ID).Error("failed to update webhook delivery")
		}
		return
	}

	s.markDeliveryFailed(ctx, delivery, resp.StatusCode, string(body))
}

// markDeliveryFailed schedules the next retry, or gives up once the
// backoff ladder is exhausted.
func (s *Service) markDeliveryFailed(ctx context.Context, delivery *models.WebhookDelivery, statusCode int, responseBody string) {
	delivery.StatusCode = statusCode
	delivery.ResponseBody = responseBody
	delivery.RetryCount++

	if delivery.RetryCount <= len(retryDelays) {
		nextRetry := time.Now().Add(retryDelays[delivery.RetryCount-1])
		delivery.NextRetryAt = &nextRetry
		delivery.Status = models.WebhookDeliveryStatusPending
	} else {
		now := time.Now()
		delivery.NextRetryAt = nil
		delivery.Status = models.WebhookDeliveryStatusFailed
		delivery.CompletedAt = &now
		metrics.RecordError("webhook", "delivery")
		s.log.WithFields(map[string]interface{}{
			"delivery_id": delivery.ID,
			"webhook_id":  delivery.WebhookID,
			"event":       delivery.Event,
		}).Warn("webhook delivery failed permanently")
	}

	if err := s.repo.UpdateWebhookDelivery(ctx, delivery); err != nil {
		s.log.WithError(err).WithField("delivery_id", delivery.ID).Error("failed to update webhook delivery")
	}
}

// Signature computes the HMAC-SHA256 header value for a payload
func Signature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// RetryWorker redelivers pending webhooks until the context ends
func (s *Service) RetryWorker(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retryPendingDeliveries(ctx)
		}
	}
}

func (s *Service) retryPendingDeliveries(ctx context.Context) {
	deliveries, err := s.repo.GetPendingWebhookDeliveries(ctx, 100)
	if err != nil {
		s.log.WithError(err).Error("failed to get pending webhook deliveries")
		return
	}

	for _, delivery := range deliveries {
		if delivery.NextRetryAt == nil || time.Now().Before(*delivery.NextRetryAt) {
			continue
		}

		webhook, err := s.repo.GetWebhook(ctx, delivery.WebhookID)
		if err != nil {
			s.log.WithError(err).WithField("delivery_id", delivery.ID).Warn("failed to load webhook for retry")
			continue
		}
		if !webhook.IsActive {
			continue
		}

		go s.deliver(context.Background(), webhook, delivery, []byte(delivery.Payload))
	}
}

// NotifyAnalysisStarted reports that a worker picked up an analysis
func (s *Service) NotifyAnalysisStarted(ctx context.Context, analysis *models.Analysis) error {
	return s.Notify(ctx, models.WebhookEventAnalysisStarted, analysis)
}

// NotifyAnalysisCompleted reports a finished analysis with its totals
func (s *Service) NotifyAnalysisCompleted(ctx context.Context, analysis *models.Analysis) error {
	return s.Notify(ctx, models.WebhookEventAnalysisCompleted, analysis)
}

// NotifyAnalysisFailed reports a failed attempt. The analysis may still
// be retried; subscribers see the retry as a following started event.
func (s *Service) NotifyAnalysisFailed(ctx context.Context, analysis *models.Analysis) error {
	return s.Notify(ctx, models.WebhookEventAnalysisFailed, analysis)
}
