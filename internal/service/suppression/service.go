package suppression

import (
	"context"
	"strings"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
// All methods are pure: they take typed inputs and return typed outputs.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an email address should be blocked from sending
// for a given tenant.
func (s *Service) IsSuppressed(ctx context.Context, tenantID, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, tenantID, normalize(email))
}

// Suppress upserts a suppression entry for a tenant. Idempotent on
// (tenantID, email).
func (s *Service) Suppress(ctx context.Context, tenantID, email, domainName string, reason domain.SuppressionReason, bounceType, diagnosticCode string, expiresAt *time.Time) error {
	email = normalize(email)
	if email == "" {
		return ErrEmptyEmail
	}

	entry := &domain.Suppression{
		TenantID:       tenantID,
		Email:          email,
		Domain:         domainName,
		Reason:         reason,
		BounceType:     bounceType,
		DiagnosticCode: diagnosticCode,
		SuppressedAt:   time.Now(),
		ExpiresAt:      expiresAt,
	}

	return s.repo.Upsert(ctx, entry)
}

// Remove deletes a suppression entry. Returns ErrNotFound if it doesn't exist.
func (s *Service) Remove(ctx context.Context, tenantID, email string) error {
	email = normalize(email)
	if email == "" {
		return ErrEmptyEmail
	}
	return s.repo.Remove(ctx, tenantID, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, tenantID string, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// Count returns the total number of suppressed emails for a tenant.
func (s *Service) Count(ctx context.Context, tenantID string) (int, error) {
	return s.repo.Count(ctx, tenantID)
}

// Stats returns aggregate counts grouped by reason.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

// GetStats computes suppression statistics for the admin surface.
func (s *Service) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, tenantID, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:    total,
		ByReason: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByReason[string(e.Reason)]++
	}
	return stats, nil
}

// SweepExpired deletes transient-block entries past their ExpiresAt, used by
// the reputation monitor's periodic sweep (step 4).
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
