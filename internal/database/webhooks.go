package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/therealutkarshpriyadarshi/motionscan/pkg/models"
)

// Webhooks

// CreateWebhook registers a callback endpoint
func (r *Repository) CreateWebhook(ctx context.Context, webhook *models.Webhook) error {
	if webhook.ID == "" {
		webhook.ID = uuid.New().String()
	}

	query := `
		INSERT INTO webhooks (id, url, secret, events, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		webhook.ID, webhook.URL, webhook.Secret, webhook.Events, webhook.IsActive,
	).Scan(&webhook.CreatedAt, &webhook.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}

	return nil
}

// GetWebhook retrieves a webhook by ID
func (r *Repository) GetWebhook(ctx context.Context, id string) (*models.Webhook, error) {
	var webhook models.Webhook

	query := `
		SELECT id, url, secret, events, is_active, created_at, updated_at
		FROM webhooks
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&webhook.ID, &webhook.URL, &webhook.Secret, &webhook.Events,
		&webhook.IsActive, &webhook.CreatedAt, &webhook.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}

	return &webhook, nil
}

// ListWebhooks returns all registered webhooks
func (r *Repository) ListWebhooks(ctx context.Context) ([]*models.Webhook, error) {
	query := `
		SELECT id, url, secret, events, is_active, created_at, updated_at
		FROM webhooks
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		var webhook models.Webhook
		if err := rows.Scan(
			&webhook.ID, &webhook.URL, &webhook.Secret, &webhook.Events,
			&webhook.IsActive, &webhook.CreatedAt, &webhook.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, &webhook)
	}

	return webhooks, rows.Err()
}

// GetWebhooksByEvent returns the active webhooks subscribed to an event
func (r *Repository) GetWebhooksByEvent(ctx context.Context, event string) ([]*models.Webhook, error) {
	query := `
		SELECT id, url, secret, events, is_active, created_at, updated_at
		FROM webhooks
		WHERE is_active = true AND $1 = ANY(events)
	`

	rows, err := r.db.Pool.Query(ctx, query, event)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhooks for event: %w", err)
	}
	defer rows.Close()

	var webhooks []*models.Webhook
	for rows.Next() {
		var webhook models.Webhook
		if err := rows.Scan(
			&webhook.ID, &webhook.URL, &webhook.Secret, &webhook.Events,
			&webhook.IsActive, &webhook.CreatedAt, &webhook.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, &webhook)
	}

	return webhooks, rows.Err()
}

// DeleteWebhook removes a webhook registration
func (r *Repository) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Webhook deliveries

// CreateWebhookDelivery records a new delivery attempt
func (r *Repository) CreateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, event, payload, status,
		                                status_code, response_body, retry_count,
		                                next_retry_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		delivery.ID, delivery.WebhookID, delivery.Event, delivery.Payload,
		delivery.Status, delivery.StatusCode, delivery.ResponseBody,
		delivery.RetryCount, delivery.NextRetryAt, delivery.CompletedAt,
	).Scan(&delivery.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create webhook delivery: %w", err)
	}

	return nil
}

// UpdateWebhookDelivery updates a delivery after an attempt
func (r *Repository) UpdateWebhookDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $2, status_code = $3, response_body = $4, retry_count = $5,
		    next_retry_at = $6, completed_at = $7
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		delivery.ID, delivery.Status, delivery.StatusCode, delivery.ResponseBody,
		delivery.RetryCount, delivery.NextRetryAt, delivery.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update webhook delivery: %w", err)
	}

	return nil
}

// ListWebhookDeliveries returns the most recent deliveries of a webhook
func (r *Repository) ListWebhookDeliveries(ctx context.Context, webhookID string, limit int) ([]*models.WebhookDelivery, error) {
	query := `
		SELECT id, webhook_id, event, payload, status, status_code, response_body,
		       retry_count, next_retry_at, completed_at, created_at
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook deliveries: %w", err)
	}
	defer rows.Close()

	return scanWebhookDeliveries(rows)
}

// GetPendingWebhookDeliveries returns deliveries waiting for a retry
func (r *Repository) GetPendingWebhookDeliveries(ctx context.Context, limit int) ([]*models.WebhookDelivery, error) {
	query := `
		SELECT id, webhook_id, event, payload, status, status_code, response_body,
		       retry_count, next_retry_at, completed_at, created_at
		FROM webhook_deliveries
		WHERE status = $1 AND next_retry_at IS NOT NULL
		ORDER BY next_retry_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, models.WebhookDeliveryStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending deliveries: %w", err)
	}
	defer rows.Close()

	return scanWebhookDeliveries(rows)
}

func scanWebhookDeliveries(rows pgx.Rows) ([]*models.WebhookDelivery, error) {
	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		var d models.WebhookDelivery
		if err := rows.Scan(
			&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.Status, &d.StatusCode,
			&d.ResponseBody, &d.RetryCount, &d.NextRetryAt, &d.CompletedAt, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, &d)
	}

	return deliveries, rows.Err()
}
