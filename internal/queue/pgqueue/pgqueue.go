// Package pgqueue implements queue.Queue on Postgres using
// `FOR UPDATE SKIP LOCKED` claims.
package pgqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/queue"
)

// StaleClaimAge is how long a claimed-but-unacked row is treated as
// abandoned and becomes reclaimable again.
const StaleClaimAge = 5 * time.Minute

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Enqueue(ctx context.Context, job domain.SendJob, notBefore time.Time) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal send job: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO send_queue (outbox_id, tenant_id, payload, status, attempt, scheduled_at, created_at)
		VALUES ($1, $2, $3, 'queued', $4, $5, NOW())
		ON CONFLICT (outbox_id) DO UPDATE SET
			payload = $3, status = 'queued', attempt = $4, scheduled_at = $5, locked_at = NULL, worker_id = NULL
	`, job.OutboxID, job.TenantID, payload, job.Attempt, notBefore)
	if err != nil {
		return fmt.Errorf("enqueue send job: %w", err)
	}
	return nil
}

// Claim reclaims `limit` rows that are either freshly queued or stale
// (claimed by a worker that crashed before acking), using SKIP LOCKED so
// concurrent workers never double-claim a row.
func (s *Store) Claim(ctx context.Context, workerID string, limit int) ([]queue.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE send_queue
			SET status = 'sending', worker_id = $1, locked_at = NOW()
			WHERE id IN (
				SELECT id FROM send_queue
				WHERE (status = 'queued' AND scheduled_at <= NOW())
				   OR (status = 'sending' AND locked_at < NOW() - INTERVAL '5 minutes')
				ORDER BY scheduled_at ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, payload, attempt
		)
		SELECT id, payload, attempt FROM claimed
	`, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim send queue batch: %w", err)
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		var id string
		var payload []byte
		var attempt int
		if err := rows.Scan(&id, &payload, &attempt); err != nil {
			return nil, fmt.Errorf("scan claimed row: %w", err)
		}
		var job domain.SendJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, fmt.Errorf("unmarshal send job: %w", err)
		}
		items = append(items, queue.Item{ID: id, Job: job, Attempt: attempt})
	}
	return items, rows.Err()
}

func (s *Store) Ack(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM send_queue WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("ack send queue item: %w", err)
	}
	return nil
}

func (s *Store) Retry(ctx context.Context, itemID string, notBefore time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE send_queue
		SET status = 'queued', attempt = attempt + 1, scheduled_at = $2,
		    last_error = $3, locked_at = NULL, worker_id = NULL
		WHERE id = $1
	`, itemID, notBefore, lastError)
	if err != nil {
		return fmt.Errorf("retry send queue item: %w", err)
	}
	return nil
}

func (s *Store) Fail(ctx context.Context, itemID string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE send_queue SET status = 'dead_letter', last_error = $2 WHERE id = $1
	`, itemID, lastError)
	if err != nil {
		return fmt.Errorf("fail send queue item: %w", err)
	}
	return nil
}
