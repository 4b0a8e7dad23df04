package domain

import (
	"context"
	"time"
)

// TenantThrottle is the per-tenant daily rate-limit record the send
// pipeline checks as a hard precondition before handling a job, rather
// than trusting the producer to have read it first. The reputation monitor
// writes this record when a tenant's warm-up limit is exceeded; the send
// pipeline reads it as an extension of its suppression check.
type TenantThrottle struct {
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Date      string    `json:"date" db:"date"` // YYYY-MM-DD, UTC
	Limit     int       `json:"limit" db:"limit_count"`
	SentCount int       `json:"sent_count" db:"sent_count"`
	Blocked   bool       `json:"blocked" db:"blocked"`
	Reason    string    `json:"reason,omitempty" db:"reason"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Exceeded reports whether this throttle record should block further sends
// today.
func (t *TenantThrottle) Exceeded() bool {
	return t.Blocked || (t.Limit > 0 && t.SentCount >= t.Limit)
}

// ThrottleStore is the narrow capability the reputation monitor writes
// warm-up throttle records to and the send pipeline reads as a hard
// precondition.
type ThrottleStore interface {
	Get(ctx context.Context, tenantID, date string) (*TenantThrottle, error)
	Upsert(ctx context.Context, t *TenantThrottle) error
	IncrSent(ctx context.Context, tenantID, date string) error
}
