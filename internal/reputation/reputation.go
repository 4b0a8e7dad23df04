// Package reputation implements the hourly reputation monitor: recompute
// each active tenant's 24h deliverability window, apply the
// suspension/throttle guardrails, persist the metric, and sweep expired
// suppressions.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

// EngagementRater computes the engagement rate (opens+clicks over
// delivered) a tenant's reputation score bonus is based on. A nil rater is
// treated as always returning 0.
type EngagementRater interface {
	EngagementRate(ctx context.Context, tenantID string, start, end time.Time) (float64, error)
}

// Monitor runs one sweep over all active tenants.
type Monitor struct {
	tenants     domain.TenantStore
	domains     domain.DomainStore
	reputation  domain.ReputationStore
	suppression domain.SuppressionStore
	throttle    domain.ThrottleStore
	engagement  EngagementRater
}

// Config bundles Monitor's collaborators.
type Config struct {
	Tenants     domain.TenantStore
	Domains     domain.DomainStore
	Reputation  domain.ReputationStore
	Suppression domain.SuppressionStore
	Throttle    domain.ThrottleStore
	Engagement  EngagementRater
}

func New(cfg Config) *Monitor {
	return &Monitor{
		tenants:     cfg.Tenants,
		domains:     cfg.Domains,
		reputation:  cfg.Reputation,
		suppression: cfg.Suppression,
		throttle:    cfg.Throttle,
		engagement:  cfg.Engagement,
	}
}

// Result summarizes one sweep, for logging and tests.
type Result struct {
	TenantsScanned    int
	TenantsSuspended  int
	TenantsThrottled  int
	SuppressionsSwept int64
}

// Run executes the full sweep once. Per-tenant failures are logged and do
// not abort the sweep, matching the sandbox monitor's failure-isolation
// contract: a single bad tenant must never block the rest of the fleet.
func (m *Monitor) Run(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	tenantIDs, err := m.reputation.ListEligibleTenantIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list eligible tenants: %w", err)
	}

	windowStart := now.Add(-24 * time.Hour)
	for _, tenantID := range tenantIDs {
		res.TenantsScanned++
		if err := m.runTenant(ctx, tenantID, windowStart, now, &res); err != nil {
			logger.Error("reputation sweep failed for tenant", "tenant_id", tenantID, "error", err.Error())
		}
	}

	swept, err := m.suppression.DeleteExpired(ctx, now)
	if err != nil {
		logger.Error("sweep expired suppressions", "error", err.Error())
	}
	res.SuppressionsSwept = swept

	return res, nil
}

func (m *Monitor) runTenant(ctx context.Context, tenantID string, windowStart, now time.Time, res *Result) error {
	metric, err := m.reputation.ComputeWindow(ctx, tenantID, windowStart, now)
	if err != nil {
		return fmt.Errorf("compute window: %w", err)
	}
	metric.ComputedAt = now

	engagementRate := 0.0
	if m.engagement != nil {
		if r, err := m.engagement.EngagementRate(ctx, tenantID, windowStart, now); err == nil {
			engagementRate = r
		}
	}

	verdict := metric.Evaluate(engagementRate)
	if verdict == domain.VerdictSuspend {
		reason := suspensionReason(metric)
		if err := m.tenants.Suspend(ctx, tenantID, reason); err != nil {
			return fmt.Errorf("suspend tenant: %w", err)
		}
		res.TenantsSuspended++
		logger.Warn("tenant auto-suspended", "tenant_id", tenantID, "reason", reason)
	}

	if err := m.tenants.UpdateRates(ctx, tenantID, metric.BounceRate(), metric.ComplaintRate()); err != nil {
		return fmt.Errorf("update rates: %w", err)
	}

	throttled, err := m.applyWarmupThrottle(ctx, tenantID, now)
	if err != nil {
		return fmt.Errorf("warmup throttle: %w", err)
	}
	if throttled {
		res.TenantsThrottled++
	}

	if err := m.reputation.Save(ctx, metric); err != nil {
		return fmt.Errorf("save metric: %w", err)
	}
	return nil
}

func suspensionReason(m *domain.ReputationMetric) string {
	if m.BounceRate() >= domain.BounceRateSuspendThreshold {
		return "High bounce rate detected by automated reputation monitor"
	}
	if m.ComplaintRate() >= domain.ComplaintRateSuspendThreshold {
		return "High complaint rate detected by automated reputation monitor"
	}
	return "Reputation score below suspension threshold"
}

// applyWarmupThrottle implements the guardrail's warm-up clause: if any of
// the tenant's domains has warm-up enabled and today's sent volume has
// reached the computed curve limit, write/update the tenant's daily
// throttle record so the send pipeline blocks further sends today.
func (m *Monitor) applyWarmupThrottle(ctx context.Context, tenantID string, now time.Time) (bool, error) {
	if m.domains == nil || m.throttle == nil {
		return false, nil
	}
	domains, err := m.domains.ListForTenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("list domains: %w", err)
	}

	date := now.UTC().Format("2006-01-02")
	throttled := false
	for _, d := range domains {
		if !d.WarmupEnabled || d.WarmupConfig == nil || d.WarmupStartDate == nil {
			continue
		}
		day := int(now.UTC().Sub(d.WarmupStartDate.UTC()).Hours() / 24)
		limit := d.WarmupConfig.WarmupLimit(day)

		existing, err := m.throttle.Get(ctx, tenantID, date)
		if err != nil {
			return throttled, fmt.Errorf("get throttle record: %w", err)
		}
		sentCount := 0
		if existing != nil {
			sentCount = existing.SentCount
		}
		if sentCount < limit {
			continue
		}
		if err := m.throttle.Upsert(ctx, &domain.TenantThrottle{
			TenantID:  tenantID,
			Date:      date,
			Limit:     limit,
			SentCount: sentCount,
			Blocked:   true,
			Reason:    "warm-up limit reached",
			UpdatedAt: now,
		}); err != nil {
			return throttled, fmt.Errorf("upsert throttle record: %w", err)
		}
		throttled = true
	}
	return throttled, nil
}
