package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// ReputationRepo implements domain.ReputationStore against PostgreSQL.
// ComputeWindow aggregates EmailLog rows directly rather than maintaining
// a running counter.
type ReputationRepo struct{ db *sql.DB }

func NewReputationRepo(db *sql.DB) *ReputationRepo { return &ReputationRepo{db: db} }

func (r *ReputationRepo) ComputeWindow(ctx context.Context, tenantID string, start, end time.Time) (*domain.ReputationMetric, error) {
	m := &domain.ReputationMetric{TenantID: tenantID, WindowStart: start, WindowEnd: end}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE bounce_type = 'hard'),
			COUNT(*) FILTER (WHERE bounce_type = 'soft'),
			COUNT(*) FILTER (WHERE complaint_feedback_type IS NOT NULL AND complaint_feedback_type != '')
		FROM email_logs
		WHERE tenant_id = $1 AND sent_at >= $2 AND sent_at < $3
	`, tenantID, start, end).Scan(&m.Sent, &m.HardBounces, &m.SoftBounces, &m.Complaints)
	if err != nil {
		return nil, fmt.Errorf("compute reputation window: %w", err)
	}
	return m, nil
}

func (r *ReputationRepo) Save(ctx context.Context, m *domain.ReputationMetric) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reputation_metrics (
			tenant_id, window_start, window_end, sent, hard_bounces, soft_bounces, complaints, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (tenant_id, window_start) DO UPDATE SET
			window_end = $3, sent = $4, hard_bounces = $5, soft_bounces = $6, complaints = $7, computed_at = now()
	`, m.TenantID, m.WindowStart, m.WindowEnd, m.Sent, m.HardBounces, m.SoftBounces, m.Complaints)
	if err != nil {
		return fmt.Errorf("save reputation metric: %w", err)
	}
	return nil
}

func (r *ReputationRepo) ListEligibleTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM tenants WHERE is_active = true AND is_approved = true AND is_suspended = false
	`)
	if err != nil {
		return nil, fmt.Errorf("list eligible tenant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
