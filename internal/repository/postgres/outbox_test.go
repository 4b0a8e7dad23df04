package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/gatewayd/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() { db.Close() }
}

func TestOutboxRepo_Get(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOutboxRepo(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "recipient_id", "to_address", "subject", "html", "status",
		"attempts", "last_error", "processed_at", "created_at",
	}).AddRow("ob-1", "tenant-1", "rec-1", "alice@example.com", "Hi", "<p>Hi</p>", "pending",
		0, "", nil, now)

	mock.ExpectQuery("SELECT id, tenant_id, recipient_id, to_address, subject, html, status").
		WithArgs("ob-1").
		WillReturnRows(rows)

	entry, err := repo.Get(context.Background(), "ob-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.OutboxPending, entry.Status)
	assert.Equal(t, "alice@example.com", entry.To)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_Get_NotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOutboxRepo(db)
	mock.ExpectQuery("SELECT id, tenant_id, recipient_id, to_address, subject, html, status").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "recipient_id", "to_address", "subject", "html", "status",
			"attempts", "last_error", "processed_at", "created_at",
		}))

	entry, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestOutboxRepo_MarkSent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOutboxRepo(db)
	now := time.Now()
	mock.ExpectExec("UPDATE outbox_entries SET status = \\$2, processed_at = \\$3").
		WithArgs("ob-1", string(domain.OutboxSent), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "ob-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkFailed(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewOutboxRepo(db)
	mock.ExpectExec("UPDATE outbox_entries SET status = \\$2, last_error = \\$3, attempts = attempts \\+ 1").
		WithArgs("ob-1", string(domain.OutboxFailed), "invalid_template:script tag rejected").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), "ob-1", "invalid_template:script tag rejected")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
