package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/gatewayd/internal/domain"
)

// IPPoolRepo implements domain.IPPoolStore against PostgreSQL.
type IPPoolRepo struct{ db *sql.DB }

func NewIPPoolRepo(db *sql.DB) *IPPoolRepo { return &IPPoolRepo{db: db} }

func (r *IPPoolRepo) Get(ctx context.Context, poolID string) (*domain.IPPool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, addresses, reputation, daily_limit, hourly_limit,
			warmup_enabled, warmup_config, warmup_started, paused, pause_reason, created_at
		FROM ip_pools WHERE id = $1
	`, poolID)
	return scanIPPool(row)
}

func (r *IPPoolRepo) ListForTenant(ctx context.Context, tenantID string) ([]*domain.IPPool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.type, p.addresses, p.reputation, p.daily_limit, p.hourly_limit,
			p.warmup_enabled, p.warmup_config, p.warmup_started, p.paused, p.pause_reason, p.created_at
		FROM ip_pools p
		JOIN tenant_ip_pools t ON t.pool_id = p.id
		WHERE t.tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list pools for tenant: %w", err)
	}
	defer rows.Close()

	var out []*domain.IPPool
	for rows.Next() {
		p, err := scanIPPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *IPPoolRepo) SentToday(ctx context.Context, poolID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_logs
		WHERE pool_id = $1 AND sent_at >= $2
	`, poolID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sent today: %w", err)
	}
	return count, nil
}

func (r *IPPoolRepo) SetPaused(ctx context.Context, poolID string, paused bool, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE ip_pools SET paused = $2, pause_reason = $3 WHERE id = $1
	`, poolID, paused, reason)
	if err != nil {
		return fmt.Errorf("set pool paused: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIPPool(row scanner) (*domain.IPPool, error) {
	var p domain.IPPool
	var typ string
	var addrs pq.StringArray
	var warmupCfg []byte

	err := row.Scan(&p.ID, &p.Name, &typ, &addrs, &p.Reputation, &p.DailyLimitCfg, &p.HourlyLimit,
		&p.WarmupEnabled, &warmupCfg, &p.WarmupStarted, &p.Paused, &p.PauseReason, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan ip pool: %w", err)
	}
	p.Type = domain.IPPoolType(typ)
	p.Addresses = []string(addrs)
	if len(warmupCfg) > 0 {
		var cfg domain.WarmupConfig
		if err := json.Unmarshal(warmupCfg, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal warmup config: %w", err)
		}
		p.WarmupConfig = &cfg
	}
	return &p, nil
}
