package ippool

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

type mockStore struct {
	pools map[string]*domain.IPPool
	byTenant []*domain.IPPool
}

func (m *mockStore) Get(ctx context.Context, poolID string) (*domain.IPPool, error) {
	return m.pools[poolID], nil
}

func (m *mockStore) ListForTenant(ctx context.Context, tenantID string) ([]*domain.IPPool, error) {
	return m.byTenant, nil
}

func (m *mockStore) SentToday(ctx context.Context, poolID string, since time.Time) (int, error) {
	return 0, nil
}

func (m *mockStore) SetPaused(ctx context.Context, poolID string, paused bool, reason string) error {
	return nil
}

func TestSelect_ReturnsRequestedActivePool(t *testing.T) {
	requested := &domain.IPPool{ID: "p1", Type: domain.IPPoolDedicated}
	store := &mockStore{pools: map[string]*domain.IPPool{"p1": requested}}
	sel := NewSelector(store)

	got, err := sel.Select(context.Background(), Request{TenantID: "t1", RequestedPoolID: "p1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "p1" {
		t.Errorf("expected p1, got %s", got.ID)
	}
}

func TestSelect_SkipsRequestedPausedPool(t *testing.T) {
	requested := &domain.IPPool{ID: "p1", Type: domain.IPPoolDedicated, Paused: true}
	fallback := &domain.IPPool{ID: "p2", Type: domain.IPPoolShared, Reputation: 90, CreatedAt: time.Now()}
	store := &mockStore{
		pools:    map[string]*domain.IPPool{"p1": requested},
		byTenant: []*domain.IPPool{fallback},
	}
	sel := NewSelector(store)

	got, err := sel.Select(context.Background(), Request{TenantID: "t1", RequestedPoolID: "p1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "p2" {
		t.Errorf("expected fallback to p2, got %s", got.ID)
	}
}

func TestSelect_PicksHighestReputationActivePool(t *testing.T) {
	low := &domain.IPPool{ID: "low", Type: domain.IPPoolShared, Reputation: 40, CreatedAt: time.Now()}
	high := &domain.IPPool{ID: "high", Type: domain.IPPoolShared, Reputation: 95, CreatedAt: time.Now()}
	store := &mockStore{byTenant: []*domain.IPPool{low, high}}
	sel := NewSelector(store)

	got, err := sel.Select(context.Background(), Request{TenantID: "t1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "high" {
		t.Errorf("expected high-reputation pool, got %s", got.ID)
	}
}

func TestSelect_TiesBrokenByOldestCreatedAt(t *testing.T) {
	older := &domain.IPPool{ID: "older", Type: domain.IPPoolShared, Reputation: 80, CreatedAt: time.Now().Add(-time.Hour)}
	newer := &domain.IPPool{ID: "newer", Type: domain.IPPoolShared, Reputation: 80, CreatedAt: time.Now()}
	store := &mockStore{byTenant: []*domain.IPPool{newer, older}}
	sel := NewSelector(store)

	got, err := sel.Select(context.Background(), Request{TenantID: "t1"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "older" {
		t.Errorf("expected tie broken to older pool, got %s", got.ID)
	}
}

func TestSelect_FallbackTypeIteratesInOrder(t *testing.T) {
	marketing := &domain.IPPool{ID: "mkt", Type: domain.IPPoolMarketing, Reputation: 99, CreatedAt: time.Now()}
	store := &mockStore{byTenant: []*domain.IPPool{marketing}}
	sel := NewSelector(store)

	_, err := sel.Select(context.Background(), Request{TenantID: "t1", FallbackType: domain.IPPoolShared})
	if err != ErrNoPoolAvailable {
		t.Fatalf("expected ErrNoPoolAvailable when only marketing pool exists and fallback=shared, got %v", err)
	}

	got, err := sel.Select(context.Background(), Request{TenantID: "t1", FallbackType: domain.IPPoolMarketing})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.ID != "mkt" {
		t.Errorf("expected mkt pool, got %s", got.ID)
	}
}

func TestSelect_NoPoolsReturnsErrNoPoolAvailable(t *testing.T) {
	store := &mockStore{}
	sel := NewSelector(store)

	_, err := sel.Select(context.Background(), Request{TenantID: "t1"})
	if err != ErrNoPoolAvailable {
		t.Fatalf("expected ErrNoPoolAvailable, got %v", err)
	}
}
