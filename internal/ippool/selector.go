// Package ippool implements the IP-pool selector: given a tenant and an
// optional explicit pool request, pick the pool a send job should attach
// to.
package ippool

import (
	"context"
	"errors"
	"sort"

	"github.com/ignite/gatewayd/internal/domain"
)

// ErrNoPoolAvailable is returned when no active pool matches the candidate
// types. Callers may proceed without a pool; the provider driver decides
// whether a pool is mandatory.
var ErrNoPoolAvailable = errors.New("ippool: no active pool available")

// defaultCandidateTypes is iterated when the caller supplies no fallback
// type.
var defaultCandidateTypes = []domain.IPPoolType{
	domain.IPPoolShared,
	domain.IPPoolTransactional,
	domain.IPPoolMarketing,
}

// Request is the input to Select.
type Request struct {
	TenantID        string
	RequestedPoolID string
	FallbackType    domain.IPPoolType
}

// Selector picks an IP pool for a send job.
type Selector struct {
	store domain.IPPoolStore
}

func NewSelector(store domain.IPPoolStore) *Selector {
	return &Selector{store: store}
}

// Select picks a pool: an explicit, active requested pool wins outright.
// Otherwise it iterates candidate types in order, and within each type
// picks the highest-reputation active pool, ties broken by oldest
// created_at. Returns ErrNoPoolAvailable if nothing qualifies.
func (s *Selector) Select(ctx context.Context, req Request) (*domain.IPPool, error) {
	if req.RequestedPoolID != "" {
		pool, err := s.store.Get(ctx, req.RequestedPoolID)
		if err == nil && pool != nil && isActive(pool) {
			return pool, nil
		}
	}

	candidates := defaultCandidateTypes
	if req.FallbackType != "" {
		candidates = []domain.IPPoolType{req.FallbackType}
	}

	pools, err := s.store.ListForTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	for _, t := range candidates {
		var active []*domain.IPPool
		for _, p := range pools {
			if p.Type == t && isActive(p) {
				active = append(active, p)
			}
		}
		if len(active) == 0 {
			continue
		}
		sort.Slice(active, func(i, j int) bool {
			if active[i].Reputation != active[j].Reputation {
				return active[i].Reputation > active[j].Reputation
			}
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		})
		return active[0], nil
	}

	return nil, ErrNoPoolAvailable
}

func isActive(p *domain.IPPool) bool {
	return p != nil && !p.Paused
}
