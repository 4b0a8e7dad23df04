// Package sandbox implements the daily sandbox auto-approval sweep: promote
// new tenants out of their restricted sandbox state once they've
// demonstrated a clean sending track record.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

const (
	// minAccountAge is the "created_at <= now-7d" candidacy gate.
	minAccountAge = 7 * 24 * time.Hour
	// bounceRateCeiling and complaintRateCeiling are the candidacy gates
	// on a tenant's recent deliverability.
	bounceRateCeiling    = 0.02
	complaintRateCeiling = 0.0005
	// sentThreshold is the minimum SENT count to auto-approve.
	sentThreshold = 50
	// approvedDailyLimit is the daily_email_limit a newly-approved tenant
	// graduates to.
	approvedDailyLimit = 5000
	// approvedBy identifies the automated actor in Tenant.ApprovedBy.
	approvedBy = "auto_approval_system"
)

// SentCounter reports how many SENT emails a tenant has produced, used to
// decide auto-approval eligibility.
type SentCounter interface {
	CountSent(ctx context.Context, tenantID string) (int64, error)
}

// Monitor runs one daily sweep.
type Monitor struct {
	tenants domain.TenantStore
	sent    SentCounter
}

func New(tenants domain.TenantStore, sent SentCounter) *Monitor {
	return &Monitor{tenants: tenants, sent: sent}
}

// Result summarizes one sweep.
type Result struct {
	Candidates int
	Approved   int
}

// Run lists candidates, counts SENT emails for each, and auto-approves
// those that clear the threshold. A failure on one candidate is logged and
// does not abort the sweep.
func (m *Monitor) Run(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	candidates, err := m.tenants.ListSandboxCandidates(ctx, now.Add(-minAccountAge))
	if err != nil {
		return res, fmt.Errorf("list sandbox candidates: %w", err)
	}

	for _, t := range candidates {
		if !isCandidate(t, now) {
			continue
		}
		res.Candidates++

		approved, err := m.evaluate(ctx, t, now)
		if err != nil {
			logger.Error("sandbox evaluation failed", "tenant_id", t.ID, "error", err.Error())
			continue
		}
		if approved {
			res.Approved++
		}
	}
	return res, nil
}

// isCandidate re-checks the gates the store's query is expected to apply,
// defending against a looser ListSandboxCandidates implementation.
func isCandidate(t *domain.Tenant, now time.Time) bool {
	if t.IsApproved || !t.IsActive || t.IsSuspended {
		return false
	}
	if now.Sub(t.CreatedAt) < minAccountAge {
		return false
	}
	return t.BounceRate < bounceRateCeiling && t.ComplaintRate < complaintRateCeiling
}

func (m *Monitor) evaluate(ctx context.Context, t *domain.Tenant, now time.Time) (bool, error) {
	count, err := m.sent.CountSent(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("count sent: %w", err)
	}
	if count < sentThreshold {
		return false, nil
	}
	if err := m.tenants.Approve(ctx, t.ID, approvedBy, approvedDailyLimit); err != nil {
		return false, fmt.Errorf("approve tenant: %w", err)
	}
	logger.Info("tenant auto-approved from sandbox", "tenant_id", t.ID, "sent_count", count)
	return true, nil
}
