package dlqadmin

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/queue"
)

type fakeStore struct {
	entries map[string]*domain.DeadLetterEntry
	removed []string
}

func (f *fakeStore) Park(ctx context.Context, e *domain.DeadLetterEntry) error {
	f.entries[e.ID] = e
	return nil
}
func (f *fakeStore) List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.DeadLetterEntry, error) {
	return f.ListAll(ctx)
}
func (f *fakeStore) Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error) {
	return f.entries[id], nil
}
func (f *fakeStore) MarkReplayed(ctx context.Context, id string, at time.Time) error {
	if e, ok := f.entries[id]; ok {
		e.Replayed = true
		e.ReplayedAt = &at
	}
	return nil
}
func (f *fakeStore) Remove(ctx context.Context, id string) error {
	f.removed = append(f.removed, id)
	delete(f.entries, id)
	return nil
}
func (f *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, e := range f.entries {
		if e.DeadAt.Before(cutoff) {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}
func (f *fakeStore) ListAll(ctx context.Context) ([]*domain.DeadLetterEntry, error) {
	var out []*domain.DeadLetterEntry
	for _, e := range f.entries {
		if !e.Replayed {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeQueue struct {
	enqueued []domain.SendJob
}

func (f *fakeQueue) Enqueue(ctx context.Context, job domain.SendJob, notBefore time.Time) error {
	f.enqueued = append(f.enqueued, job)
	return nil
}
func (f *fakeQueue) Claim(ctx context.Context, workerID string, limit int) ([]queue.Item, error) {
	return nil, nil
}
func (f *fakeQueue) Ack(ctx context.Context, itemID string) error { return nil }
func (f *fakeQueue) Retry(ctx context.Context, itemID string, notBefore time.Time, lastError string) error {
	return nil
}
func (f *fakeQueue) Fail(ctx context.Context, itemID string, lastError string) error { return nil }

func TestRetry_ReEnqueuesAndMarksReplayed(t *testing.T) {
	store := &fakeStore{entries: map[string]*domain.DeadLetterEntry{
		"d1": {ID: "d1", OutboxID: "o1", Job: domain.SendJob{OutboxID: "o1"}, DeadAt: time.Now()},
	}}
	q := &fakeQueue{}
	f := New(store, q)

	if err := f.Retry(context.Background(), "d1"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected 1 re-enqueue, got %d", len(q.enqueued))
	}
	if !store.entries["d1"].Replayed {
		t.Fatalf("expected entry marked replayed")
	}
}

func TestStats_HealthVerdicts(t *testing.T) {
	now := time.Now()
	store := &fakeStore{entries: map[string]*domain.DeadLetterEntry{
		"old-1": {ID: "old-1", DeadAt: now.Add(-25 * time.Hour), LastError: "timeout"},
	}}
	f := New(store, &fakeQueue{})

	stats, err := f.Stats(context.Background(), now)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Old != 1 {
		t.Fatalf("expected 1 old entry, got %d", stats.Old)
	}
	if stats.Health() != HealthCritical {
		t.Fatalf("expected critical health with an old job present, got %s", stats.Health())
	}
}

func TestStats_HealthyWhenEmpty(t *testing.T) {
	f := New(&fakeStore{entries: map[string]*domain.DeadLetterEntry{}}, &fakeQueue{})
	stats, err := f.Stats(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Health() != HealthHealthy {
		t.Fatalf("expected healthy, got %s", stats.Health())
	}
}

func TestClean_RemovesOldEntries(t *testing.T) {
	now := time.Now()
	store := &fakeStore{entries: map[string]*domain.DeadLetterEntry{
		"ancient": {ID: "ancient", DeadAt: now.Add(-30 * 24 * time.Hour)},
		"recent":  {ID: "recent", DeadAt: now.Add(-1 * time.Hour)},
	}}
	f := New(store, &fakeQueue{})

	n, err := f.Clean(context.Background(), 7*24*time.Hour, now)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	if _, ok := store.entries["ancient"]; ok {
		t.Fatalf("expected ancient entry removed")
	}
}

func TestBulkRetry_IsolatesFailures(t *testing.T) {
	store := &fakeStore{entries: map[string]*domain.DeadLetterEntry{
		"ok": {ID: "ok", Job: domain.SendJob{OutboxID: "o1"}, DeadAt: time.Now()},
	}}
	f := New(store, &fakeQueue{})

	res, err := f.BulkRetry(context.Background(), []string{"ok", "missing"})
	if err != nil {
		t.Fatalf("BulkRetry: %v", err)
	}
	if res.Succeeded != 1 || len(res.Failed) != 1 || res.Failed[0] != "missing" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
