package domain

import (
	"context"
	"time"
)

// WebhookEventType enumerates the EmailEvent types a tenant can subscribe a
// webhook to.
type WebhookEventType string

const (
	WebhookEventSent       WebhookEventType = "sent"
	WebhookEventFailed     WebhookEventType = "failed"
	WebhookEventDelivered  WebhookEventType = "delivered"
	WebhookEventBounced    WebhookEventType = "bounced"
	WebhookEventComplained WebhookEventType = "complained"
	WebhookEventOpened     WebhookEventType = "opened"
	WebhookEventClicked    WebhookEventType = "clicked"
)

// Webhook is a tenant-registered HTTP endpoint that the delivery worker
// fans EmailEvents out to, HMAC-signed.
type Webhook struct {
	ID         string             `json:"id" db:"id"`
	TenantID   string             `json:"tenant_id" db:"tenant_id"`
	URL        string             `json:"url" db:"url"`
	Secret     string             `json:"-" db:"secret"`
	Events     []WebhookEventType `json:"events" db:"events"`
	IsActive   bool               `json:"is_active" db:"is_active"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}

// Subscribes reports whether this webhook wants the given event type.
func (w *Webhook) Subscribes(ev EmailEventType) bool {
	for _, e := range w.Events {
		if string(e) == string(ev) {
			return true
		}
	}
	return false
}

// WebhookDeliveryStatus enumerates the lifecycle of a single delivery
// record.
type WebhookDeliveryStatus string

const (
	WebhookDeliveryPending  WebhookDeliveryStatus = "pending"
	WebhookDeliverySuccess  WebhookDeliveryStatus = "success"
	WebhookDeliveryRetrying WebhookDeliveryStatus = "retrying"
	WebhookDeliveryFailed   WebhookDeliveryStatus = "failed"
)

const maxResponseBodyChars = 1000

// WebhookDelivery is one customer-facing webhook fan-out attempt.
// EmailEventID is additional traceability back to the EmailEvent that
// triggered the fan-out; Payload is the exact JSON body POSTed, captured
// at enqueue time so the delivery worker never needs to re-derive it from
// EmailLog/EmailEvent state that may have moved on.
type WebhookDelivery struct {
	ID            string                `json:"id" db:"id"`
	WebhookID     string                `json:"webhook_id" db:"webhook_id"`
	EmailEventID  string                `json:"email_event_id,omitempty" db:"email_event_id"`
	EventType     WebhookEventType      `json:"event_type" db:"event_type"`
	Payload       []byte                `json:"payload" db:"payload"`
	Status        WebhookDeliveryStatus `json:"status" db:"status"`
	Attempts      int                   `json:"attempts" db:"attempts"`
	ResponseCode  int                   `json:"response_code,omitempty" db:"response_code"`
	ResponseBody  string                `json:"response_body,omitempty" db:"response_body"`
	LastError     string                `json:"last_error,omitempty" db:"last_error"`
	NextAttemptAt *time.Time            `json:"next_retry_at,omitempty" db:"next_retry_at"`
	DeliveredAt   *time.Time            `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt     time.Time             `json:"created_at" db:"created_at"`
}

// SetResponseBody truncates body to the 1000-character cap required
// before it is persisted.
func (d *WebhookDelivery) SetResponseBody(body string) {
	if len(body) > maxResponseBodyChars {
		body = body[:maxResponseBodyChars]
	}
	d.ResponseBody = body
}

// WebhookStore is the narrow capability the webhook delivery worker uses to
// find subscribers and persist attempt outcomes.
type WebhookStore interface {
	ListActiveForTenant(ctx context.Context, tenantID string, ev WebhookEventType) ([]*Webhook, error)
	EnqueueDelivery(ctx context.Context, d *WebhookDelivery) error
	ClaimDueDeliveries(ctx context.Context, limit int) ([]*WebhookDelivery, error)
	UpdateDeliveryOutcome(ctx context.Context, d *WebhookDelivery) error
	Get(ctx context.Context, webhookID string) (*Webhook, error)
}
