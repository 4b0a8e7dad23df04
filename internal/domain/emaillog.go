package domain

import (
	"context"
	"time"
)

// EmailStatus mirrors OutboxStatus for the terminal per-outbox log record.
type EmailStatus string

const (
	EmailStatusSent     EmailStatus = "sent"
	EmailStatusFailed   EmailStatus = "failed"
	EmailStatusRetrying EmailStatus = "retrying"
)

// EmailLog is the terminal per-outbox record, upserted keyed by OutboxID —
// exactly one row exists per OutboxEntry (invariant 1).
type EmailLog struct {
	ID                     string       `json:"id" db:"id"`
	OutboxID               string       `json:"outbox_id" db:"outbox_id"`
	TenantID               string       `json:"tenant_id" db:"tenant_id"`
	RecipientID            string       `json:"recipient_id,omitempty" db:"recipient_id"`
	PoolID                 string       `json:"pool_id,omitempty" db:"pool_id"`
	To                     string       `json:"to" db:"to_address"`
	Subject                string       `json:"subject" db:"subject"`
	Status                 EmailStatus  `json:"status" db:"status"`
	ProviderMessageID      string       `json:"provider_message_id,omitempty" db:"provider_message_id"`
	ErrorCode              string       `json:"error_code,omitempty" db:"error_code"`
	ErrorReason            string       `json:"error_reason,omitempty" db:"error_reason"`
	Attempts               int          `json:"attempts" db:"attempts"`
	DurationMS             int64        `json:"duration_ms" db:"duration_ms"`
	SentAt                 *time.Time   `json:"sent_at,omitempty" db:"sent_at"`
	FailedAt               *time.Time   `json:"failed_at,omitempty" db:"failed_at"`
	DeliveryTimestamp      *time.Time   `json:"delivery_timestamp,omitempty" db:"delivery_timestamp"`
	BounceType             string       `json:"bounce_type,omitempty" db:"bounce_type"`
	BounceSubtype          string       `json:"bounce_subtype,omitempty" db:"bounce_subtype"`
	ComplaintFeedbackType  string       `json:"complaint_feedback_type,omitempty" db:"complaint_feedback_type"`
}

// EmailEventType enumerates the append-only lifecycle events of an EmailLog.
type EmailEventType string

const (
	EventProcessing EmailEventType = "processing"
	EventSent       EmailEventType = "sent"
	EventFailed     EmailEventType = "failed"
	EventRetrying   EmailEventType = "retrying"
	EventDelivered  EmailEventType = "delivered"
	EventBounced    EmailEventType = "bounced"
	EventComplained EmailEventType = "complained"
	EventOpened     EmailEventType = "opened"
	EventClicked    EmailEventType = "clicked"
)

// EmailEvent is an append-only child of EmailLog.
type EmailEvent struct {
	ID          string                 `json:"id" db:"id"`
	EmailLogID  string                 `json:"email_log_id" db:"email_log_id"`
	Type        EmailEventType         `json:"type" db:"type"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// EmailLogStore is the narrow persistence capability the send pipeline and
// feedback ingest workers use to upsert logs and append events.
type EmailLogStore interface {
	Upsert(ctx context.Context, log *EmailLog) error
	AppendEvent(ctx context.Context, ev *EmailEvent) error
	GetByOutboxID(ctx context.Context, outboxID string) (*EmailLog, error)
	GetByProviderMessageID(ctx context.Context, messageID string) (*EmailLog, error)
}

// URLClick records a single click event against a tracked message.
type URLClick struct {
	URL string    `json:"url"`
	At  time.Time `json:"ts"`
}

// EmailTracking holds per-message open/click counters.
type EmailTracking struct {
	EmailLogID   string     `json:"email_log_id" db:"email_log_id"`
	TrackingID   string     `json:"tracking_id" db:"tracking_id"`
	OpenedAt     *time.Time `json:"opened_at,omitempty" db:"opened_at"`
	OpenCount    int        `json:"open_count" db:"open_count"`
	ClickedAt    *time.Time `json:"clicked_at,omitempty" db:"clicked_at"`
	ClickCount   int        `json:"click_count" db:"click_count"`
	ClickedURLs  []URLClick `json:"clicked_urls,omitempty" db:"clicked_urls"`
	UserAgent    string     `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress    string     `json:"ip_address,omitempty" db:"ip_address"`
}

// EmailTrackingStore upserts EmailTracking rows, tolerating concurrent
// writes from the feedback ingest worker for the same message.
type EmailTrackingStore interface {
	RecordOpen(ctx context.Context, emailLogID, trackingID, userAgent, ip string) error
	RecordClick(ctx context.Context, emailLogID, trackingID, url, userAgent, ip string) error
}
