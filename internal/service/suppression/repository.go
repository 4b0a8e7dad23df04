package suppression

import (
	"context"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// Repository defines the data access contract for the suppression list.
// It is a thin passthrough onto domain.SuppressionStore plus the
// list/stat operations the admin surface needs.
type Repository interface {
	IsSuppressed(ctx context.Context, tenantID, email string) (bool, error)
	Upsert(ctx context.Context, s *domain.Suppression) error
	Remove(ctx context.Context, tenantID, email string) error
	List(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Suppression, int, error)
	Count(ctx context.Context, tenantID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Reason domain.SuppressionReason
	Search string
	Limit  int
	Offset int
}
