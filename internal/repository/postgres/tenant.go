package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// TenantRepo implements domain.TenantStore against PostgreSQL.
type TenantRepo struct{ db *sql.DB }

func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func (r *TenantRepo) Get(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, is_active, is_approved, is_suspended, suspension_reason, daily_email_limit,
			default_from_address, default_from_name, default_domain_id, bounce_rate, complaint_rate,
			created_at, approved_at, approved_by
		FROM tenants WHERE id = $1
	`, tenantID)
	return scanTenant(row)
}

func (r *TenantRepo) Suspend(ctx context.Context, tenantID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET is_suspended = true, suspension_reason = $2 WHERE id = $1
	`, tenantID, reason)
	if err != nil {
		return fmt.Errorf("suspend tenant: %w", err)
	}
	return nil
}

func (r *TenantRepo) Approve(ctx context.Context, tenantID, approvedBy string, dailyEmailLimit int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET is_approved = true, approved_by = $2, approved_at = now(), daily_email_limit = $3
		WHERE id = $1
	`, tenantID, approvedBy, dailyEmailLimit)
	if err != nil {
		return fmt.Errorf("approve tenant: %w", err)
	}
	return nil
}

func (r *TenantRepo) UpdateRates(ctx context.Context, tenantID string, bounceRate, complaintRate float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET bounce_rate = $2, complaint_rate = $3 WHERE id = $1
	`, tenantID, bounceRate, complaintRate)
	if err != nil {
		return fmt.Errorf("update tenant rates: %w", err)
	}
	return nil
}

func (r *TenantRepo) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, is_active, is_approved, is_suspended, suspension_reason, daily_email_limit,
			default_from_address, default_from_name, default_domain_id, bounce_rate, complaint_rate,
			created_at, approved_at, approved_by
		FROM tenants WHERE is_active = true AND is_approved = true AND is_suspended = false
	`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()
	return scanTenants(rows)
}

func (r *TenantRepo) ListSandboxCandidates(ctx context.Context, createdBefore time.Time) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, is_active, is_approved, is_suspended, suspension_reason, daily_email_limit,
			default_from_address, default_from_name, default_domain_id, bounce_rate, complaint_rate,
			created_at, approved_at, approved_by
		FROM tenants
		WHERE is_approved = false AND is_active = true AND is_suspended = false AND created_at <= $1
	`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("list sandbox candidates: %w", err)
	}
	defer rows.Close()
	return scanTenants(rows)
}

func scanTenant(row scanner) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.ID, &t.IsActive, &t.IsApproved, &t.IsSuspended, &t.SuspensionReason, &t.DailyEmailLimit,
		&t.DefaultFromAddress, &t.DefaultFromName, &t.DefaultDomainID, &t.BounceRate, &t.ComplaintRate,
		&t.CreatedAt, &t.ApprovedAt, &t.ApprovedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

func scanTenants(rows *sql.Rows) ([]*domain.Tenant, error) {
	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DomainRepo implements domain.DomainStore against PostgreSQL.
type DomainRepo struct{ db *sql.DB }

func NewDomainRepo(db *sql.DB) *DomainRepo { return &DomainRepo{db: db} }

func (r *DomainRepo) Get(ctx context.Context, domainID string) (*domain.Domain, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, domain, status, warmup_enabled, warmup_start_date, warmup_config
		FROM sending_domains WHERE id = $1
	`, domainID)
	return scanDomain(row)
}

func (r *DomainRepo) ListForTenant(ctx context.Context, tenantID string) ([]*domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, domain, status, warmup_enabled, warmup_start_date, warmup_config
		FROM sending_domains WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list domains for tenant: %w", err)
	}
	defer rows.Close()

	var out []*domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDomain(row scanner) (*domain.Domain, error) {
	var d domain.Domain
	var status string
	var warmupCfg []byte
	err := row.Scan(&d.ID, &d.TenantID, &d.Domain, &status, &d.WarmupEnabled, &d.WarmupStartDate, &warmupCfg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	d.Status = domain.DomainStatus(status)
	if len(warmupCfg) > 0 {
		var cfg domain.WarmupConfig
		if err := json.Unmarshal(warmupCfg, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal warmup config: %w", err)
		}
		d.WarmupConfig = &cfg
	}
	return &d, nil
}
