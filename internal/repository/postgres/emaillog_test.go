package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/gatewayd/internal/domain"
)

func TestEmailLogRepo_Upsert_AssignsID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEmailLogRepo(db)
	mock.ExpectExec("INSERT INTO email_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	log := &domain.EmailLog{
		OutboxID: "ob-1",
		TenantID: "tenant-1",
		To:       "alice@example.com",
		Subject:  "Hi",
		Status:   domain.EmailStatusSent,
	}
	require.NoError(t, repo.Upsert(context.Background(), log))
	assert.NotEmpty(t, log.ID, "Upsert must assign an id when one isn't supplied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailLogRepo_AppendEvent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEmailLogRepo(db)
	mock.ExpectExec("INSERT INTO email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ev := &domain.EmailEvent{
		EmailLogID: "log-1",
		Type:       domain.EventSent,
		Metadata:   map[string]any{"provider_message_id": "msg-123"},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, repo.AppendEvent(context.Background(), ev))
	assert.NotEmpty(t, ev.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailLogRepo_GetByProviderMessageID_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEmailLogRepo(db)
	mock.ExpectQuery("SELECT id, outbox_id, tenant_id, recipient_id, pool_id, to_address, subject, status").
		WithArgs("msg-unknown").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "outbox_id", "tenant_id", "recipient_id", "pool_id", "to_address", "subject", "status",
			"provider_message_id", "error_code", "error_reason", "attempts", "duration_ms",
			"sent_at", "failed_at", "delivery_timestamp", "bounce_type", "bounce_subtype",
			"complaint_feedback_type",
		}))

	log, err := repo.GetByProviderMessageID(context.Background(), "msg-unknown")
	require.NoError(t, err)
	assert.Nil(t, log, "feedback ingest must ack-and-skip on an unmatched message id, not error")
}

func TestEmailLogRepo_CountSent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewEmailLogRepo(db)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM email_logs").
		WithArgs("tenant-1", string(domain.EmailStatusSent)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(50)))

	count, err := repo.CountSent(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
}
