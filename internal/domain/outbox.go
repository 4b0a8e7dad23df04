package domain

import (
	"context"
	"time"
)

// OutboxStatus enumerates the lifecycle states of an OutboxEntry.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSent       OutboxStatus = "sent"
	OutboxFailed     OutboxStatus = "failed"
	OutboxRetrying   OutboxStatus = "retrying"
)

// OutboxEntry is the sole owner of the authoritative HTML body for a send
// request. The send pipeline worker is its exclusive writer
// once a job has been enqueued; downstream code only ever reads HTML
// through OutboxStore.GetHTML, never via a second ORM-shaped copy.
type OutboxEntry struct {
	ID           string       `json:"id" db:"id"`
	TenantID     string       `json:"tenant_id" db:"tenant_id"`
	RecipientID  string       `json:"recipient_id,omitempty" db:"recipient_id"`
	To           string       `json:"to" db:"to_address"`
	Subject      string       `json:"subject" db:"subject"`
	HTML         string       `json:"-" db:"html"`
	Status       OutboxStatus `json:"status" db:"status"`
	Attempts     int          `json:"attempts" db:"attempts"`
	LastError    string       `json:"last_error,omitempty" db:"last_error"`
	ProcessedAt  *time.Time   `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// Recipient is a tenant-scoped address book entry. A SendJob may reference
// one by id; the send pipeline cross-checks it against the payload email.
type Recipient struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	Email     string     `json:"email" db:"email"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

func (r *Recipient) SoftDeleted() bool { return r.DeletedAt != nil }

// OutboxStore is the narrow read/write capability the send pipeline and its
// collaborators use to reach OutboxEntry rows. It is the single place
// downstream code fetches HTML from.
type OutboxStore interface {
	Get(ctx context.Context, outboxID string) (*OutboxEntry, error)
	GetHTML(ctx context.Context, outboxID string) (string, error)
	MarkSent(ctx context.Context, outboxID string, processedAt time.Time) error
	MarkFailed(ctx context.Context, outboxID, lastError string) error
	MarkRetrying(ctx context.Context, outboxID, lastError string) error
}

// RecipientStore looks up tenant-scoped recipients by id.
type RecipientStore interface {
	Get(ctx context.Context, recipientID string) (*Recipient, error)
}
