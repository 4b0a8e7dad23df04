package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// OutboxRepo implements domain.OutboxStore against PostgreSQL. It is the
// single place HTML bodies are read back from.
type OutboxRepo struct{ db *sql.DB }

func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

func (r *OutboxRepo) Get(ctx context.Context, outboxID string) (*domain.OutboxEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, recipient_id, to_address, subject, html, status,
			attempts, last_error, processed_at, created_at
		FROM outbox_entries WHERE id = $1
	`, outboxID)

	var e domain.OutboxEntry
	var status string
	err := row.Scan(&e.ID, &e.TenantID, &e.RecipientID, &e.To, &e.Subject, &e.HTML, &status,
		&e.Attempts, &e.LastError, &e.ProcessedAt, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox entry: %w", err)
	}
	e.Status = domain.OutboxStatus(status)
	return &e, nil
}

func (r *OutboxRepo) GetHTML(ctx context.Context, outboxID string) (string, error) {
	var html string
	err := r.db.QueryRowContext(ctx, `SELECT html FROM outbox_entries WHERE id = $1`, outboxID).Scan(&html)
	if err != nil {
		return "", fmt.Errorf("get outbox html: %w", err)
	}
	return html, nil
}

func (r *OutboxRepo) MarkSent(ctx context.Context, outboxID string, processedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_entries SET status = $2, processed_at = $3 WHERE id = $1
	`, outboxID, string(domain.OutboxSent), processedAt)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

func (r *OutboxRepo) MarkFailed(ctx context.Context, outboxID, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_entries SET status = $2, last_error = $3, attempts = attempts + 1
		WHERE id = $1
	`, outboxID, string(domain.OutboxFailed), lastError)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (r *OutboxRepo) MarkRetrying(ctx context.Context, outboxID, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_entries SET status = $2, last_error = $3, attempts = attempts + 1
		WHERE id = $1
	`, outboxID, string(domain.OutboxRetrying), lastError)
	if err != nil {
		return fmt.Errorf("mark outbox retrying: %w", err)
	}
	return nil
}

// RecipientRepo implements domain.RecipientStore against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

func (r *RecipientRepo) Get(ctx context.Context, recipientID string) (*domain.Recipient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, deleted_at FROM recipients WHERE id = $1
	`, recipientID)

	var rec domain.Recipient
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.Email, &rec.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient: %w", err)
	}
	return &rec, nil
}
