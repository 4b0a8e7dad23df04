package domain

import (
	"context"
	"time"
)

// IPPoolType enumerates the candidate pool types the selector iterates over
// when a tenant has no explicit pool assignment.
type IPPoolType string

const (
	IPPoolShared        IPPoolType = "shared"
	IPPoolTransactional IPPoolType = "transactional"
	IPPoolMarketing     IPPoolType = "marketing"
	IPPoolDedicated     IPPoolType = "dedicated"
)

// IPPool groups a set of sending IPs under a shared reputation and warm-up
// schedule. Tenants are assigned to a pool; the pool, not
// the individual IP, is the unit the IP-pool selector reasons about.
type IPPool struct {
	ID            string        `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	Type          IPPoolType    `json:"type" db:"type"`
	Addresses     []string      `json:"addresses" db:"addresses"`
	Reputation    float64       `json:"reputation" db:"reputation"`
	DailyLimitCfg *int          `json:"daily_limit,omitempty" db:"daily_limit"`
	HourlyLimit   *int          `json:"hourly_limit,omitempty" db:"hourly_limit"`
	WarmupEnabled bool          `json:"warmup_enabled" db:"warmup_enabled"`
	WarmupConfig  *WarmupConfig `json:"warmup_config,omitempty" db:"warmup_config"`
	WarmupStarted *time.Time    `json:"warmup_started,omitempty" db:"warmup_started"`
	Paused        bool          `json:"paused" db:"paused"`
	PauseReason   string        `json:"pause_reason,omitempty" db:"pause_reason"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// DailyLimit returns the volume this pool may send today given its warm-up
// schedule and configured daily_limit, 0 if paused, and -1 when unlimited.
func (p *IPPool) DailyLimit(now time.Time) int {
	if p.Paused {
		return 0
	}
	if p.WarmupEnabled && p.WarmupConfig != nil && p.WarmupStarted != nil {
		day := int(now.Sub(*p.WarmupStarted).Hours() / 24)
		return p.WarmupConfig.WarmupLimit(day)
	}
	if p.DailyLimitCfg != nil {
		return *p.DailyLimitCfg
	}
	return -1
}

// IPPoolStore is the narrow capability the IP-pool selector and the
// reputation monitor use to read and pause pools.
type IPPoolStore interface {
	Get(ctx context.Context, poolID string) (*IPPool, error)
	ListForTenant(ctx context.Context, tenantID string) ([]*IPPool, error)
	SentToday(ctx context.Context, poolID string, since time.Time) (int, error)
	SetPaused(ctx context.Context, poolID string, paused bool, reason string) error
}
