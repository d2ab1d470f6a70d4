package models

import "time"

// Webhook is a registered callback endpoint for analysis lifecycle events
type Webhook struct {
	ID        string    `json:"id" db:"id"`
	URL       string    `json:"url" db:"url"`
	Secret    string    `json:"-" db:"secret"`
	Events    []string  `json:"events" db:"events"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WebhookDelivery tracks the delivery attempts of one event to one endpoint
type WebhookDelivery struct {
	ID           string     `json:"id" db:"id"`
	WebhookID    string     `json:"webhook_id" db:"webhook_id"`
	Event        string     `json:"event" db:"event"`
	Payload      string     `json:"payload" db:"payload"`
	Status       string     `json:"status" db:"status"`
	StatusCode   int        `json:"status_code,omitempty" db:"status_code"`
	ResponseBody string     `json:"response_body,omitempty" db:"response_body"`
	RetryCount   int        `json:"retry_count" db:"retry_count"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// WebhookEvent is the JSON body posted to registered endpoints
type WebhookEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Webhook event names
const (
	WebhookEventAnalysisStarted   = "analysis.started"
	WebhookEventAnalysisCompleted = "analysis.completed"
	WebhookEventAnalysisFailed    = "analysis.failed"
)

// WebhookEventNames lists the events an endpoint can subscribe to
var WebhookEventNames = []string{
	WebhookEventAnalysisStarted,
	WebhookEventAnalysisCompleted,
	WebhookEventAnalysisFailed,
}

// Webhook delivery status constants
const (
	WebhookDeliveryStatusPending   = "pending"
	WebhookDeliveryStatusDelivered = "delivered"
	WebhookDeliveryStatusFailed    = "failed"
)
