package domain

import (
	"context"
	"math"
	"time"
)

// Tenant is an organization that sends email through the gateway.
type Tenant struct {
	ID                 string     `json:"id" db:"id"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	IsApproved         bool       `json:"is_approved" db:"is_approved"`
	IsSuspended        bool       `json:"is_suspended" db:"is_suspended"`
	SuspensionReason   string     `json:"suspension_reason,omitempty" db:"suspension_reason"`
	DailyEmailLimit    int        `json:"daily_email_limit" db:"daily_email_limit"`
	DefaultFromAddress string     `json:"default_from_address,omitempty" db:"default_from_address"`
	DefaultFromName    string     `json:"default_from_name,omitempty" db:"default_from_name"`
	DefaultDomainID    string     `json:"default_domain_id,omitempty" db:"default_domain_id"`
	BounceRate         float64    `json:"bounce_rate" db:"bounce_rate"`
	ComplaintRate      float64    `json:"complaint_rate" db:"complaint_rate"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	ApprovedAt         *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy         string     `json:"approved_by,omitempty" db:"approved_by"`
}

// Eligible reports whether the tenant may currently send mail: a tenant in
// (is_active ∧ is_approved ∧ ¬is_suspended) is eligible.
func (t *Tenant) Eligible() bool {
	return t.IsActive && t.IsApproved && !t.IsSuspended
}

// TenantStore is the narrow capability the send pipeline (via the API
// driver's from-address resolution), the reputation monitor, and the
// sandbox monitor use against the tenant table. Tenant creation and
// account management belong to the out-of-scope ingress service; this
// store only ever mutates the guardrail-relevant fields.
type TenantStore interface {
	Get(ctx context.Context, tenantID string) (*Tenant, error)
	Suspend(ctx context.Context, tenantID, reason string) error
	Approve(ctx context.Context, tenantID, approvedBy string, dailyEmailLimit int) error
	UpdateRates(ctx context.Context, tenantID string, bounceRate, complaintRate float64) error
	ListActive(ctx context.Context) ([]*Tenant, error)
	ListSandboxCandidates(ctx context.Context, createdBefore time.Time) ([]*Tenant, error)
}

// DomainStore looks up a tenant's sending domains, used by the API driver's
// from-address resolution and the reputation monitor's warm-up check.
type DomainStore interface {
	Get(ctx context.Context, domainID string) (*Domain, error)
	ListForTenant(ctx context.Context, tenantID string) ([]*Domain, error)
}

// DomainStatus enumerates the verification state of a sending domain.
type DomainStatus string

const (
	DomainPending  DomainStatus = "pending"
	DomainVerified DomainStatus = "verified"
	DomainFailed   DomainStatus = "failed"
)

// WarmupConfig describes the ramp curve for a newly verified sending domain
// or IP pool: limit(day) = min(startVolume*increase^day, max).
type WarmupConfig struct {
	StartVolume     int     `json:"start_volume" db:"start_volume"`
	DailyIncrease   float64 `json:"daily_increase" db:"daily_increase"`
	MaxDailyVolume  int     `json:"max_daily_volume" db:"max_daily_volume"`
}

// Domain is a tenant-owned sending domain.
type Domain struct {
	ID              string        `json:"id" db:"id"`
	TenantID        string        `json:"tenant_id" db:"tenant_id"`
	Domain          string        `json:"domain" db:"domain"`
	Status          DomainStatus  `json:"status" db:"status"`
	WarmupEnabled   bool          `json:"warmup_enabled" db:"warmup_enabled"`
	WarmupStartDate *time.Time    `json:"warmup_start_date,omitempty" db:"warmup_start_date"`
	WarmupConfig    *WarmupConfig `json:"warmup_config,omitempty" db:"warmup_config"`
}

// WarmupLimit returns the allowed daily send volume for the given day offset
// since WarmupStartDate, per the curve above.
func (c WarmupConfig) WarmupLimit(day int) int {
	if day < 0 {
		day = 0
	}
	limit := float64(c.StartVolume) * math.Pow(c.DailyIncrease, float64(day))
	if limit > float64(c.MaxDailyVolume) {
		return c.MaxDailyVolume
	}
	return int(limit)
}
