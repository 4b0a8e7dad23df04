// Package sendworker drives the claim/process/ack loop tying the Postgres
// send queue to the send pipeline worker, exposing a resizable
// concurrency knob the SLO controller (internal/slo) adjusts at runtime.
package sendworker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/gatewayd/internal/pkg/logger"
	"github.com/ignite/gatewayd/internal/queue"
	"github.com/ignite/gatewayd/internal/queue/pgqueue"
	"github.com/ignite/gatewayd/internal/sendpipeline"
)

// Pool claims batches of SendJobs and fans them out to goroutines bounded
// by a runtime-adjustable limit.
type Pool struct {
	store    *pgqueue.Store
	worker   *sendpipeline.Worker
	workerID string
	poll     time.Duration
	batch    int

	limit  int32
	active int32
	paused int32

	wg sync.WaitGroup
}

// New builds a Pool claiming up to batch jobs per poll tick, running at
// most concurrency jobs at once.
func New(store *pgqueue.Store, worker *sendpipeline.Worker, workerID string, concurrency, batch int, poll time.Duration) *Pool {
	return &Pool{
		store:    store,
		worker:   worker,
		workerID: workerID,
		poll:     poll,
		batch:    batch,
		limit:    int32(concurrency),
	}
}

// Run blocks, dispatching claimed jobs until ctx is cancelled, then waits
// for in-flight jobs to finish before returning.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context) {
	if atomic.LoadInt32(&p.paused) == 1 {
		return
	}
	free := int(atomic.LoadInt32(&p.limit) - atomic.LoadInt32(&p.active))
	if free <= 0 {
		return
	}
	if free > p.batch {
		free = p.batch
	}

	items, err := p.store.Claim(ctx, p.workerID, free)
	if err != nil {
		logger.Error("claim send jobs failed", "error", err.Error())
		return
	}

	for _, item := range items {
		atomic.AddInt32(&p.active, 1)
		p.wg.Add(1)
		go func(it queue.Item) {
			defer p.wg.Done()
			defer atomic.AddInt32(&p.active, -1)
			p.process(ctx, it)
		}(item)
	}
}

func (p *Pool) process(ctx context.Context, item queue.Item) {
	result := p.worker.ProcessJob(ctx, item)
	switch {
	case result.ShouldAck():
		if err := p.store.Ack(ctx, item.ID); err != nil {
			logger.Error("ack send job failed", "item_id", item.ID, "error", err.Error())
		}
	case result.ShouldRetry():
		if err := p.store.Retry(ctx, item.ID, result.RetryAt, result.LastError); err != nil {
			logger.Error("retry send job failed", "item_id", item.ID, "error", err.Error())
		}
	case result.ShouldDeadLetter():
		if err := p.store.Fail(ctx, item.ID, result.LastError); err != nil {
			logger.Error("dead-letter send job failed", "item_id", item.ID, "error", err.Error())
		}
	}
}

// Pause implements slo.WorkerPool: no new jobs are claimed; in-flight jobs
// run to completion.
func (p *Pool) Pause(ctx context.Context) error {
	atomic.StoreInt32(&p.paused, 1)
	return nil
}

// Resume implements slo.WorkerPool.
func (p *Pool) Resume(ctx context.Context) error {
	atomic.StoreInt32(&p.paused, 0)
	return nil
}

// SetConcurrency implements slo.WorkerPool.
func (p *Pool) SetConcurrency(n int) {
	atomic.StoreInt32(&p.limit, int32(n))
}

// Concurrency reports the currently configured limit.
func (p *Pool) Concurrency() int {
	return int(atomic.LoadInt32(&p.limit))
}
