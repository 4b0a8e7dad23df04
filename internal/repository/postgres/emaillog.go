package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/gatewayd/internal/domain"
)

// EmailLogRepo implements domain.EmailLogStore and domain.EmailTrackingStore
// against PostgreSQL. EmailLog is upserted keyed by outbox_id: exactly one
// EmailLog exists per OutboxEntry; EmailEvent rows are append-only.
type EmailLogRepo struct{ db *sql.DB }

func NewEmailLogRepo(db *sql.DB) *EmailLogRepo { return &EmailLogRepo{db: db} }

func (r *EmailLogRepo) Upsert(ctx context.Context, log *domain.EmailLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_logs (
			id, outbox_id, tenant_id, recipient_id, pool_id, to_address, subject, status,
			provider_message_id, error_code, error_reason, attempts, duration_ms,
			sent_at, failed_at, delivery_timestamp, bounce_type, bounce_subtype,
			complaint_feedback_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (outbox_id) DO UPDATE SET
			pool_id = COALESCE(NULLIF($5, ''), email_logs.pool_id),
			status = COALESCE(NULLIF($8, ''), email_logs.status),
			provider_message_id = COALESCE(NULLIF($9, ''), email_logs.provider_message_id),
			error_code = COALESCE(NULLIF($10, ''), email_logs.error_code),
			error_reason = COALESCE(NULLIF($11, ''), email_logs.error_reason),
			attempts = GREATEST(email_logs.attempts, $12),
			duration_ms = CASE WHEN $13 > 0 THEN $13 ELSE email_logs.duration_ms END,
			sent_at = COALESCE($14, email_logs.sent_at),
			failed_at = COALESCE($15, email_logs.failed_at),
			delivery_timestamp = COALESCE($16, email_logs.delivery_timestamp),
			bounce_type = COALESCE(NULLIF($17, ''), email_logs.bounce_type),
			bounce_subtype = COALESCE(NULLIF($18, ''), email_logs.bounce_subtype),
			complaint_feedback_type = COALESCE(NULLIF($19, ''), email_logs.complaint_feedback_type)
	`,
		log.ID, log.OutboxID, log.TenantID, log.RecipientID, log.PoolID, log.To, log.Subject, string(log.Status),
		log.ProviderMessageID, log.ErrorCode, log.ErrorReason, log.Attempts, log.DurationMS,
		log.SentAt, log.FailedAt, log.DeliveryTimestamp, log.BounceType, log.BounceSubtype,
		log.ComplaintFeedbackType,
	)
	if err != nil {
		return fmt.Errorf("upsert email log: %w", err)
	}
	return nil
}

func (r *EmailLogRepo) AppendEvent(ctx context.Context, ev *domain.EmailEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO email_events (id, email_log_id, type, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.EmailLogID, string(ev.Type), metadata, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append email event: %w", err)
	}
	return nil
}

func (r *EmailLogRepo) GetByOutboxID(ctx context.Context, outboxID string) (*domain.EmailLog, error) {
	return r.scanOne(ctx, `WHERE outbox_id = $1`, outboxID)
}

func (r *EmailLogRepo) GetByProviderMessageID(ctx context.Context, messageID string) (*domain.EmailLog, error) {
	return r.scanOne(ctx, `WHERE provider_message_id = $1`, messageID)
}

// CountSent implements sandbox.SentCounter: the all-time SENT count backing
// the sandbox auto-approval threshold.
func (r *EmailLogRepo) CountSent(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM email_logs WHERE tenant_id = $1 AND status = $2
	`, tenantID, string(domain.EmailStatusSent)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return count, nil
}

func (r *EmailLogRepo) scanOne(ctx context.Context, where string, arg interface{}) (*domain.EmailLog, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, outbox_id, tenant_id, recipient_id, pool_id, to_address, subject, status,
			provider_message_id, error_code, error_reason, attempts, duration_ms,
			sent_at, failed_at, delivery_timestamp, bounce_type, bounce_subtype,
			complaint_feedback_type
		FROM email_logs %s
	`, where), arg)

	var log domain.EmailLog
	var status string
	err := row.Scan(
		&log.ID, &log.OutboxID, &log.TenantID, &log.RecipientID, &log.PoolID, &log.To, &log.Subject, &status,
		&log.ProviderMessageID, &log.ErrorCode, &log.ErrorReason, &log.Attempts, &log.DurationMS,
		&log.SentAt, &log.FailedAt, &log.DeliveryTimestamp, &log.BounceType, &log.BounceSubtype,
		&log.ComplaintFeedbackType,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan email log: %w", err)
	}
	log.Status = domain.EmailStatus(status)
	return &log, nil
}

// RecordOpen upserts the tracking row's open counters for a message,
// tolerating concurrent writes across multiple events.
func (r *EmailLogRepo) RecordOpen(ctx context.Context, emailLogID, trackingID, userAgent, ip string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_tracking (email_log_id, tracking_id, opened_at, open_count, user_agent, ip_address)
		VALUES ($1, $2, now(), 1, $3, $4)
		ON CONFLICT (email_log_id) DO UPDATE SET
			opened_at = COALESCE(email_tracking.opened_at, now()),
			open_count = email_tracking.open_count + 1,
			user_agent = $3,
			ip_address = $4
	`, emailLogID, trackingID, userAgent, ip)
	if err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

func (r *EmailLogRepo) RecordClick(ctx context.Context, emailLogID, trackingID, url, userAgent, ip string) error {
	click, err := json.Marshal(domain.URLClick{URL: url})
	if err != nil {
		return fmt.Errorf("marshal click: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO email_tracking (email_log_id, tracking_id, clicked_at, click_count, clicked_urls, user_agent, ip_address)
		VALUES ($1, $2, now(), 1, jsonb_build_array($3::jsonb), $4, $5)
		ON CONFLICT (email_log_id) DO UPDATE SET
			clicked_at = now(),
			click_count = email_tracking.click_count + 1,
			clicked_urls = email_tracking.clicked_urls || jsonb_build_array($3::jsonb),
			user_agent = $4,
			ip_address = $5
	`, emailLogID, trackingID, click, userAgent, ip)
	if err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	return nil
}
