package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/gatewayd/internal/domain"
)

// ThrottleRepo implements domain.ThrottleStore against PostgreSQL.
type ThrottleRepo struct{ db *sql.DB }

func NewThrottleRepo(db *sql.DB) *ThrottleRepo { return &ThrottleRepo{db: db} }

func (r *ThrottleRepo) Get(ctx context.Context, tenantID, date string) (*domain.TenantThrottle, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, date, limit_count, sent_count, blocked, reason, updated_at
		FROM tenant_throttles WHERE tenant_id = $1 AND date = $2
	`, tenantID, date)

	var t domain.TenantThrottle
	err := row.Scan(&t.TenantID, &t.Date, &t.Limit, &t.SentCount, &t.Blocked, &t.Reason, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant throttle: %w", err)
	}
	return &t, nil
}

func (r *ThrottleRepo) Upsert(ctx context.Context, t *domain.TenantThrottle) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_throttles (tenant_id, date, limit_count, sent_count, blocked, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (tenant_id, date) DO UPDATE SET
			limit_count = $3, blocked = $5, reason = $6, updated_at = now()
	`, t.TenantID, t.Date, t.Limit, t.SentCount, t.Blocked, t.Reason)
	if err != nil {
		return fmt.Errorf("upsert tenant throttle: %w", err)
	}
	return nil
}

func (r *ThrottleRepo) IncrSent(ctx context.Context, tenantID, date string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_throttles (tenant_id, date, limit_count, sent_count, blocked, updated_at)
		VALUES ($1, $2, 0, 1, false, now())
		ON CONFLICT (tenant_id, date) DO UPDATE SET
			sent_count = tenant_throttles.sent_count + 1, updated_at = now()
	`, tenantID, date)
	if err != nil {
		return fmt.Errorf("incr tenant throttle sent count: %w", err)
	}
	return nil
}
