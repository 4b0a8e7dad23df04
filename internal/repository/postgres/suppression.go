package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository and domain.SuppressionStore
// against PostgreSQL, upserting on (tenant_id, email).
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, tenantID, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM suppressions WHERE tenant_id = $1 AND email = $2)`,
		tenantID, email,
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepo) Upsert(ctx context.Context, s *domain.Suppression) error {
	if s.SuppressedAt.IsZero() {
		s.SuppressedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (tenant_id, email, domain, reason, bounce_type, diagnostic_code, suppressed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, email) DO UPDATE SET
			domain = $3, reason = $4, bounce_type = $5, diagnostic_code = $6,
			suppressed_at = $7, expires_at = $8
	`, s.TenantID, s.Email, s.Domain, s.Reason, s.BounceType, s.DiagnosticCode, s.SuppressedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, tenantID, email string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE tenant_id = $1 AND email = $2`,
		tenantID, email,
	)
	if err != nil {
		return fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, tenantID string, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions WHERE tenant_id = $1 AND ($2 = '' OR reason = $2)`,
		tenantID, string(f.Reason),
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	if limit == 0 {
		return nil, total, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, email, domain, reason, bounce_type, diagnostic_code, suppressed_at, expires_at
		FROM suppressions
		WHERE tenant_id = $1 AND ($2 = '' OR reason = $2)
		ORDER BY suppressed_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, string(f.Reason), limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		if err := rows.Scan(&s.TenantID, &s.Email, &s.Domain, &s.Reason, &s.BounceType, &s.DiagnosticCode, &s.SuppressedAt, &s.ExpiresAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, s)
	}
	return out, total, nil
}

func (r *SuppressionRepo) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppressions WHERE tenant_id = $1`, tenantID,
	).Scan(&n)
	return n, err
}

// DeleteExpired removes transient-block suppressions past ExpiresAt, called
// by the reputation monitor's periodic sweep (step 4).
func (r *SuppressionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired suppressions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
