package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

const (
	callTimeout      = 35 * time.Second
	bucketCount      = 10
	bucketWidth      = time.Second
	errorRateOpen    = 0.70
	minVolume        = 10
	resetTimeout     = 60 * time.Second
)

type bucket struct {
	second int64
	total  int
	errors int
}

// CircuitBreaker wraps a Driver with a fault isolator: 35s per-call
// timeout, opens at ≥70% error rate over a 10×1s rolling window with a
// minimum volume of 10 calls, 60s reset to half-open, a single half-open
// probe.
type CircuitBreaker struct {
	driver Driver

	mu        sync.Mutex
	state     breakerState
	buckets   [bucketCount]bucket
	openedAt  time.Time
	probeInFlight bool
}

// NewCircuitBreaker wraps driver with a fresh, closed circuit breaker.
func NewCircuitBreaker(driver Driver) *CircuitBreaker {
	return &CircuitBreaker{driver: driver, state: stateClosed}
}

func (b *CircuitBreaker) Name() string { return b.driver.Name() }

// SendEmail runs the wrapped driver's SendEmail under the breaker's rules.
// Retryable errors from the driver count against the breaker; non-retryable
// errors are returned to the caller unchanged and do not count as failures.
func (b *CircuitBreaker) SendEmail(ctx context.Context, msg *domain.ResolvedMessage) (*domain.SendResult, error) {
	if !b.allow() {
		return nil, ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := b.driver.SendEmail(ctx, msg)
	if err == nil {
		b.recordSuccess()
		return result, nil
	}

	var classified *errortaxonomy.Error
	if errors.As(err, &classified) && !classified.Retryable {
		b.recordSuccess()
		return result, err
	}

	b.recordFailure()
	return result, err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) >= resetTimeout {
			b.state = stateHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case stateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

func (b *CircuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateClosed
		b.probeInFlight = false
		b.resetBuckets()
		return
	}
	b.bucketFor(time.Now()).total++
}

func (b *CircuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
		return
	}

	bk := b.bucketFor(time.Now())
	bk.total++
	bk.errors++

	if b.shouldOpen() {
		b.state = stateOpen
		b.openedAt = time.Now()
	}
}

func (b *CircuitBreaker) bucketFor(now time.Time) *bucket {
	sec := now.Unix()
	idx := int(sec % bucketCount)
	bk := &b.buckets[idx]
	if bk.second != sec {
		bk.second = sec
		bk.total = 0
		bk.errors = 0
	}
	return bk
}

func (b *CircuitBreaker) shouldOpen() bool {
	now := time.Now()
	cutoff := now.Unix() - bucketCount
	var total, errs int
	for _, bk := range b.buckets {
		if bk.second > cutoff {
			total += bk.total
			errs += bk.errors
		}
	}
	if total < minVolume {
		return false
	}
	return float64(errs)/float64(total) >= errorRateOpen
}

func (b *CircuitBreaker) resetBuckets() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
}
