// Package queue defines the narrow claim/ack/retry/fail contract the send
// pipeline and other background workers drive their job loops through.
package queue

import (
	"context"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

// Item wraps a claimed SendJob with the queue-internal bookkeeping needed
// to ack, retry, or fail it.
type Item struct {
	ID       string
	Job      domain.SendJob
	Attempt  int
}

// Queue is implemented by a send-job backing store. Claim must use a
// SKIP LOCKED-style claim so concurrent workers never double-process the
// same row.
type Queue interface {
	Enqueue(ctx context.Context, job domain.SendJob, notBefore time.Time) error
	Claim(ctx context.Context, workerID string, limit int) ([]Item, error)
	Ack(ctx context.Context, itemID string) error
	Retry(ctx context.Context, itemID string, notBefore time.Time, lastError string) error
	Fail(ctx context.Context, itemID string, lastError string) error
}
