package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// DeadLetterRepo implements domain.DeadLetterStore against PostgreSQL.
type DeadLetterRepo struct{ db *sql.DB }

func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo { return &DeadLetterRepo{db: db} }

func (r *DeadLetterRepo) Park(ctx context.Context, e *domain.DeadLetterEntry) error {
	job, err := json.Marshal(e.Job)
	if err != nil {
		return fmt.Errorf("marshal dlq job: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, outbox_id, tenant_id, job, last_error, attempts, dead_at, replayed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`, e.ID, e.OutboxID, e.TenantID, job, e.LastError, e.Attempts, e.DeadAt)
	if err != nil {
		return fmt.Errorf("park dlq entry: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.DeadLetterEntry, error) {
	var rows *sql.Rows
	var err error
	if tenantID == "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, outbox_id, tenant_id, job, last_error, attempts, dead_at, replayed, replayed_at
			FROM dead_letters ORDER BY dead_at DESC LIMIT $1 OFFSET $2
		`, limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, outbox_id, tenant_id, job, last_error, attempts, dead_at, replayed, replayed_at
			FROM dead_letters WHERE tenant_id = $1 ORDER BY dead_at DESC LIMIT $2 OFFSET $3
		`, tenantID, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list dlq entries: %w", err)
	}
	defer rows.Close()
	return scanDeadLetters(rows)
}

func (r *DeadLetterRepo) Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, outbox_id, tenant_id, job, last_error, attempts, dead_at, replayed, replayed_at
		FROM dead_letters WHERE id = $1
	`, id)

	var e domain.DeadLetterEntry
	var job []byte
	err := row.Scan(&e.ID, &e.OutboxID, &e.TenantID, &job, &e.LastError, &e.Attempts, &e.DeadAt,
		&e.Replayed, &e.ReplayedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dlq entry: %w", err)
	}
	if err := json.Unmarshal(job, &e.Job); err != nil {
		return nil, fmt.Errorf("unmarshal dlq job: %w", err)
	}
	return &e, nil
}

func (r *DeadLetterRepo) MarkReplayed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dead_letters SET replayed = true, replayed_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark dlq entry replayed: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) Remove(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove dlq entry: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE dead_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old dlq entries: %w", err)
	}
	return res.RowsAffected()
}

func (r *DeadLetterRepo) ListAll(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, outbox_id, tenant_id, job, last_error, attempts, dead_at, replayed, replayed_at
		FROM dead_letters WHERE replayed = false
	`)
	if err != nil {
		return nil, fmt.Errorf("list all dlq entries: %w", err)
	}
	defer rows.Close()
	return scanDeadLetters(rows)
}

func scanDeadLetters(rows *sql.Rows) ([]*domain.DeadLetterEntry, error) {
	var out []*domain.DeadLetterEntry
	for rows.Next() {
		var e domain.DeadLetterEntry
		var job []byte
		if err := rows.Scan(&e.ID, &e.OutboxID, &e.TenantID, &job, &e.LastError, &e.Attempts, &e.DeadAt,
			&e.Replayed, &e.ReplayedAt); err != nil {
			return nil, fmt.Errorf("scan dlq entry: %w", err)
		}
		if err := json.Unmarshal(job, &e.Job); err != nil {
			return nil, fmt.Errorf("unmarshal dlq job: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
