package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

type mockRepository struct {
	mu         sync.Mutex
	webhooks   []*models.Webhook
	deliveries []*models.WebhookDelivery
	updated    chan *models.WebhookDelivery
}

func newMockRepository(webhooks ...*models.Webhook) *mockRepository {
	return &mockRepository{
		webhooks: webhooks,
		updated:  make(chan *models.WebhookDelivery, 16),
	}
}

func (m *mockRepository) GetWebhooksByEvent(ctx context.Context, event string) ([]*models.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*models.Webhook
	for _, wh := range m.webhooks {
		for _, e := range wh.Events {
			if e == event && wh.IsActive {
				matched = append(matched, wh)
				break
			}
		}
	}
	return matched, nil
}

func (m *mockRepository) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, wh := range m.webhooks {
		if wh.ID == id {
			return wh, nil
		}
	}
	return nil, context.Canceled
}

func (m *mockRepository) CreateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries = append(m.deliveries, delivery)
	return nil
}

func (m *mockRepository) UpdateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	m.mu.Lock()
	for i, d := range m.deliveries {
		if d.ID == delivery.ID {
			m.deliveries[i] = delivery
		}
	}
	m.mu.Unlock()

	m.updated <- delivery
	return nil
}

func (m *mockRepository) GetPendingWebhookDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deliveries, nil
}

func waitForUpdate(t *testing.T, repo *mockRepository) *models.WebhookDelivery {
	t.Helper()
	select {
	case d := <-repo.updated:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery update")
		return nil
	}
}

func TestNotifyDeliversToSubscriber(t *testing.T) {
	var (
		mu       sync.Mutex
		gotEvent string
		gotSig   string
		gotBody  []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newMockRepository(&models.Webhook{
		ID:       "wh-1",
		URL:      server.URL,
		Secret:   "s3cret",
		Events:   []string{models.WebhookEventAnalysisCompleted},
		IsActive: true,
	})
	service := NewService(repo, nil)

	analysis := &models.Analysis{
		ID:          "analysis-1",
		Status:      models.AnalysisStatusCompleted,
		TotalFrames: 300,
	}
	require.NoError(t, service.NotifyAnalysisCompleted(context.Background(), analysis))

	delivery := waitForUpdate(t, repo)
	assert.Equal(t, models.WebhookDeliveryStatusDelivered, delivery.Status)
	assert.Equal(t, http.StatusOK, delivery.StatusCode)
	assert.NotNil(t, delivery.CompletedAt)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.WebhookEventAnalysisCompleted, gotEvent)
	assert.Equal(t, Signature(gotBody, "s3cret"), gotSig)

	var event models.WebhookEvent
	require.NoError(t, json.Unmarshal(gotBody, &event))
	assert.Equal(t, models.WebhookEventAnalysisCompleted, event.Event)
}

func TestNotifySkipsUnsubscribedEvents(t *testing.T) {
	repo := newMockRepository(&models.Webhook{
		ID:       "wh-1",
		URL:      "http://localhost:0",
		Events:   []string{models.WebhookEventAnalysisCompleted},
		IsActive: true,
	})
	service := NewService(repo, nil)

	err := service.NotifyAnalysisStarted(context.Background(), &models.Analysis{ID: "analysis-1"})
	assert.NoError(t, err)
	assert.Empty(t, repo.deliveries)
}

func TestNotifyRetriesOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newMockRepository(&models.Webhook{
		ID:       "wh-1",
		URL:      server.URL,
		Events:   []string{models.WebhookEventAnalysisFailed},
		IsActive: true,
	})
	service := NewService(repo, nil)

	require.NoError(t, service.NotifyAnalysisFailed(context.Background(), &models.Analysis{ID: "analysis-1"}))

	delivery := waitForUpdate(t, repo)
	assert.Equal(t, models.WebhookDeliveryStatusPending, delivery.Status)
	assert.Equal(t, http.StatusInternalServerError, delivery.StatusCode)
	assert.Equal(t, 1, delivery.RetryCount)
	require.NotNil(t, delivery.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(retryDelays[0]), *delivery.NextRetryAt, 10*time.Second)
}

func TestMarkDeliveryFailedExhaustsLadder(t *testing.T) {
	repo := newMockRepository()
	service := NewService(repo, nil)

	delivery := &models.WebhookDelivery{
		ID:         "d-1",
		WebhookID:  "wh-1",
		Event:      models.WebhookEventAnalysisCompleted,
		Status:     models.WebhookDeliveryStatusPending,
		RetryCount: len(retryDelays),
	}
	repo.deliveries = append(repo.deliveries, delivery)

	service.markDeliveryFailed(context.Background(), delivery, http.StatusBadGateway, "bad gateway")
	<-repo.updated

	assert.Equal(t, models.WebhookDeliveryStatusFailed, delivery.Status)
	assert.Nil(t, delivery.NextRetryAt)
	assert.NotNil(t, delivery.CompletedAt)
}

func TestSignatureIsStable(t *testing.T) {
	payload := []byte(`{"event":"analysis.completed"}`)

	sig := Signature(payload, "secret-a")
	assert.Contains(t, sig, "sha256=")
	assert.Equal(t, sig, Signature(payload, "secret-a"))
	assert.NotEqual(t, sig, Signature(payload, "secret-b"))
}

