package domain

import (
	"context"
	"time"
)

// ReputationMetric is a rolling 24h snapshot of a tenant's sending health,
// recomputed by the reputation monitor.
type ReputationMetric struct {
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	WindowStart   time.Time `json:"window_start" db:"window_start"`
	WindowEnd     time.Time `json:"window_end" db:"window_end"`
	Sent          int64     `json:"sent" db:"sent"`
	HardBounces   int64     `json:"hard_bounces" db:"hard_bounces"`
	SoftBounces   int64     `json:"soft_bounces" db:"soft_bounces"`
	Complaints    int64     `json:"complaints" db:"complaints"`
	ComputedAt    time.Time `json:"computed_at" db:"computed_at"`
}

// BounceRate returns HardBounces/Sent, or 0 when nothing has been sent.
func (m *ReputationMetric) BounceRate() float64 {
	if m.Sent == 0 {
		return 0
	}
	return float64(m.HardBounces) / float64(m.Sent)
}

// ComplaintRate returns Complaints/Sent, or 0 when nothing has been sent.
func (m *ReputationMetric) ComplaintRate() float64 {
	if m.Sent == 0 {
		return 0
	}
	return float64(m.Complaints) / float64(m.Sent)
}

// Guardrail thresholds: a tenant at or above either rate is auto-suspended.
// There is no separate bounce/complaint throttle
// tier; throttling is driven by warm-up-limit overrun instead (handled by
// the monitor against domain.WarmupConfig, not here).
const (
	BounceRateSuspendThreshold    = 0.02
	ComplaintRateSuspendThreshold = 0.001
	ReputationScoreSuspendBelow   = 50.0
)

// Verdict classifies a computed ReputationMetric against the guardrail
// thresholds.
type Verdict string

const (
	VerdictOK      Verdict = "ok"
	VerdictSuspend Verdict = "suspend"
)

// Evaluate returns the guardrail verdict for this metric. Engagement rate
// (opens+clicks over delivered) feeds the reputation score bonus; callers
// that don't track engagement may pass 0.
func (m *ReputationMetric) Evaluate(engagementRate float64) Verdict {
	if m.BounceRate() >= BounceRateSuspendThreshold || m.ComplaintRate() >= ComplaintRateSuspendThreshold {
		return VerdictSuspend
	}
	if m.ReputationScore(engagementRate) < ReputationScoreSuspendBelow {
		return VerdictSuspend
	}
	return VerdictOK
}

// ReputationScore computes the [0,100] score: start at 100, penalise bounce
// excess by ×1000, complaint excess by ×10000, add
// a +20·engagement_rate bonus, clamp to [0,100].
func (m *ReputationMetric) ReputationScore(engagementRate float64) float64 {
	score := 100.0
	score -= m.BounceRate() * 1000
	score -= m.ComplaintRate() * 10000
	score += 20 * engagementRate
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ReputationStore is the narrow capability the reputation monitor uses to
// aggregate EmailLog rows into a window and persist the result.
type ReputationStore interface {
	ComputeWindow(ctx context.Context, tenantID string, start, end time.Time) (*ReputationMetric, error)
	Save(ctx context.Context, m *ReputationMetric) error
	ListEligibleTenantIDs(ctx context.Context) ([]string, error)
}
