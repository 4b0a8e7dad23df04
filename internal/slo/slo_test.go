package slo

import (
	"context"
	"testing"
	"time"
)

type fakeMetrics struct {
	errorRate   float64
	queueAgeP95 time.Duration
}

func (f *fakeMetrics) ErrorRate(ctx context.Context) (float64, error)         { return f.errorRate, nil }
func (f *fakeMetrics) QueueAgeP95(ctx context.Context) (time.Duration, error) { return f.queueAgeP95, nil }

type fakePool struct {
	paused      bool
	resumed     bool
	concurrency int
}

func (f *fakePool) Pause(ctx context.Context) error  { f.paused = true; return nil }
func (f *fakePool) SetConcurrency(n int)              { f.concurrency = n }
func (f *fakePool) Resume(ctx context.Context) error  { f.resumed = true; return nil }

func TestProbe_ViolationHalvesConcurrency(t *testing.T) {
	metrics := &fakeMetrics{errorRate: 0.10}
	pool := &fakePool{}
	c := New(Config{Metrics: metrics, Pool: pool, OriginalConcurrency: 16})

	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if c.Concurrency() != 8 {
		t.Fatalf("expected concurrency=8, got %d", c.Concurrency())
	}
	if !pool.paused || !pool.resumed {
		t.Fatalf("expected pause+resume cycle")
	}
}

func TestProbe_ViolationFloorsAtOne(t *testing.T) {
	metrics := &fakeMetrics{errorRate: 0.10}
	pool := &fakePool{}
	c := New(Config{Metrics: metrics, Pool: pool, OriginalConcurrency: 1})

	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if c.Concurrency() != 1 {
		t.Fatalf("expected concurrency floored at 1, got %d", c.Concurrency())
	}
}

func TestProbe_ThreeConsecutiveOKRaisesConcurrency(t *testing.T) {
	metrics := &fakeMetrics{errorRate: 0.10}
	pool := &fakePool{}
	c := New(Config{Metrics: metrics, Pool: pool, OriginalConcurrency: 16})
	_ = c.Probe(context.Background()) // drop to 8

	metrics.errorRate = 0.01
	for i := 0; i < 2; i++ {
		if err := c.Probe(context.Background()); err != nil {
			t.Fatalf("Probe: %v", err)
		}
		if c.Concurrency() != 8 {
			t.Fatalf("expected concurrency unchanged at 8 before 3rd OK, got %d", c.Concurrency())
		}
	}
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if c.Concurrency() != 12 {
		t.Fatalf("expected concurrency raised to floor(8*1.5)=12, got %d", c.Concurrency())
	}
}

func TestProbe_RaiseNeverExceedsOriginal(t *testing.T) {
	metrics := &fakeMetrics{errorRate: 0.01, queueAgeP95: 1 * time.Second}
	pool := &fakePool{}
	c := New(Config{Metrics: metrics, Pool: pool, OriginalConcurrency: 4})
	c.current = 4

	for i := 0; i < 3; i++ {
		if err := c.Probe(context.Background()); err != nil {
			t.Fatalf("Probe: %v", err)
		}
	}
	if c.Concurrency() != 4 {
		t.Fatalf("expected concurrency capped at original=4, got %d", c.Concurrency())
	}
}
