package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/gatewayd/internal/domain"
)

// WebhookRepo implements domain.WebhookStore against PostgreSQL.
type WebhookRepo struct{ db *sql.DB }

func NewWebhookRepo(db *sql.DB) *WebhookRepo { return &WebhookRepo{db: db} }

func (r *WebhookRepo) Get(ctx context.Context, webhookID string) (*domain.Webhook, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, url, secret, events, is_active, created_at
		FROM webhooks WHERE id = $1
	`, webhookID)
	return scanWebhook(row)
}

func (r *WebhookRepo) ListActiveForTenant(ctx context.Context, tenantID string, ev domain.WebhookEventType) ([]*domain.Webhook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, url, secret, events, is_active, created_at
		FROM webhooks
		WHERE tenant_id = $1 AND is_active = true AND $2 = ANY(events)
	`, tenantID, string(ev))
	if err != nil {
		return nil, fmt.Errorf("list active webhooks: %w", err)
	}
	defer rows.Close()

	var out []*domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWebhook(row scanner) (*domain.Webhook, error) {
	var w domain.Webhook
	var events pq.StringArray
	err := row.Scan(&w.ID, &w.TenantID, &w.URL, &w.Secret, &events, &w.IsActive, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan webhook: %w", err)
	}
	w.Events = make([]domain.WebhookEventType, len(events))
	for i, e := range events {
		w.Events[i] = domain.WebhookEventType(e)
	}
	return &w, nil
}

func (r *WebhookRepo) EnqueueDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, webhook_id, email_event_id, event_type, payload, status, attempts,
			next_retry_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, d.ID, d.WebhookID, d.EmailEventID, string(d.EventType), d.Payload, string(d.Status), d.Attempts)
	if err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

// ClaimDueDeliveries selects pending/retrying deliveries whose next_retry_at
// has elapsed, locking them against concurrent claim by another worker the
// way the send pipeline's outbox claim does.
func (r *WebhookRepo) ClaimDueDeliveries(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE webhook_deliveries SET status = $1
		WHERE id IN (
			SELECT id FROM webhook_deliveries
			WHERE status IN ($1, $2) AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, webhook_id, email_event_id, event_type, payload, status, attempts,
			response_code, response_body, last_error, next_retry_at, delivered_at, created_at
	`, string(domain.WebhookDeliveryPending), string(domain.WebhookDeliveryRetrying), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookDelivery
	for rows.Next() {
		d, err := scanWebhookDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *WebhookRepo) UpdateDeliveryOutcome(ctx context.Context, d *domain.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries SET
			status = $2, attempts = $3, response_code = $4, response_body = $5,
			last_error = $6, next_retry_at = $7, delivered_at = $8
		WHERE id = $1
	`, d.ID, string(d.Status), d.Attempts, d.ResponseCode, d.ResponseBody, d.LastError,
		d.NextAttemptAt, d.DeliveredAt)
	if err != nil {
		return fmt.Errorf("update webhook delivery outcome: %w", err)
	}
	return nil
}

func scanWebhookDelivery(rows *sql.Rows) (*domain.WebhookDelivery, error) {
	var d domain.WebhookDelivery
	var status, eventType string
	err := rows.Scan(&d.ID, &d.WebhookID, &d.EmailEventID, &eventType, &d.Payload, &status, &d.Attempts,
		&d.ResponseCode, &d.ResponseBody, &d.LastError, &d.NextAttemptAt, &d.DeliveredAt, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan webhook delivery: %w", err)
	}
	d.Status = domain.WebhookDeliveryStatus(status)
	d.EventType = domain.WebhookEventType(eventType)
	return &d, nil
}
