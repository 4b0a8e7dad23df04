// Package dlqadmin implements the admin DLQ facade: operator-facing
// inspection, retry, and cleanup of dead-lettered jobs.
package dlqadmin

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/queue"
)

// Health is the verdict Stats.Health derives from its counts.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Stats is the statistics view.
type Stats struct {
	Total           int
	Old             int // dead_at older than 24h
	Recent          int // dead_at within the last 1h
	OldestAgeHours  float64
	CommonErrors    []ErrorCount // top 10, descending by count
}

// ErrorCount is one bucket of Stats.CommonErrors.
type ErrorCount struct {
	Error string
	Count int
}

// Health derives the health verdict from these stats:
// critical if there are any old jobs or more than 50 recent jobs; warning
// if total exceeds 100; healthy otherwise.
func (s Stats) Health() Health {
	switch {
	case s.Old > 0 || s.Recent > 50:
		return HealthCritical
	case s.Total > 100:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// Facade implements the operator-facing DLQ operations.
type Facade struct {
	store domain.DeadLetterStore
	queue queue.Queue
}

func New(store domain.DeadLetterStore, q queue.Queue) *Facade {
	return &Facade{store: store, queue: q}
}

// List returns a bounded page of parked jobs for tenantID (all tenants if
// empty).
func (f *Facade) List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.DeadLetterEntry, error) {
	return f.store.List(ctx, tenantID, limit, offset)
}

// Inspect returns a single parked job.
func (f *Facade) Inspect(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	return f.store.Get(ctx, id)
}

// Retry moves one parked job back to the waiting queue.
func (f *Facade) Retry(ctx context.Context, id string) error {
	entry, err := f.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get dlq entry: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("dlq entry %s not found", id)
	}
	return f.replay(ctx, entry)
}

// Remove permanently deletes a parked job without replaying it.
func (f *Facade) Remove(ctx context.Context, id string) error {
	return f.store.Remove(ctx, id)
}

// BulkRetryResult reports how many of a bulk retry's targets succeeded.
type BulkRetryResult struct {
	Attempted int
	Succeeded int
	Failed    []string // ids that failed, for operator follow-up
}

// BulkRetry replays every given id, isolating per-id failures the way the
// sandbox and reputation sweeps do.
func (f *Facade) BulkRetry(ctx context.Context, ids []string) (BulkRetryResult, error) {
	res := BulkRetryResult{Attempted: len(ids)}
	for _, id := range ids {
		if err := f.Retry(ctx, id); err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

// Clean removes all entries parked more than olderThan ago.
func (f *Facade) Clean(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	return f.store.DeleteOlderThan(ctx, now.Add(-olderThan))
}

// Stats computes the statistics view over every non-replayed
// parked job.
func (f *Facade) Stats(ctx context.Context, now time.Time) (Stats, error) {
	entries, err := f.store.ListAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list dlq entries: %w", err)
	}

	var s Stats
	s.Total = len(entries)
	errCounts := map[string]int{}
	var oldest time.Time

	for _, e := range entries {
		age := now.Sub(e.DeadAt)
		if age > 24*time.Hour {
			s.Old++
		}
		if age < time.Hour {
			s.Recent++
		}
		if oldest.IsZero() || e.DeadAt.Before(oldest) {
			oldest = e.DeadAt
		}
		errCounts[e.LastError]++
	}

	if !oldest.IsZero() {
		s.OldestAgeHours = now.Sub(oldest).Hours()
	}

	s.CommonErrors = topErrors(errCounts, 10)
	return s, nil
}

func topErrors(counts map[string]int, n int) []ErrorCount {
	list := make([]ErrorCount, 0, len(counts))
	for err, count := range counts {
		list = append(list, ErrorCount{Error: err, Count: count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Error < list[j].Error
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}

func (f *Facade) replay(ctx context.Context, entry *domain.DeadLetterEntry) error {
	if err := f.queue.Enqueue(ctx, entry.Job, time.Now()); err != nil {
		return fmt.Errorf("re-enqueue job: %w", err)
	}
	if err := f.store.MarkReplayed(ctx, entry.ID, time.Now()); err != nil {
		return fmt.Errorf("mark replayed: %w", err)
	}
	return nil
}
