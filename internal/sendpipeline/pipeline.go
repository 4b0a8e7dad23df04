// Package sendpipeline implements the send pipeline worker: validate,
// check suppression, rate-limit, select pool, send, and record the
// outcome against EmailLog/EmailEvent/Outbox.
package sendpipeline

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
	"github.com/ignite/gatewayd/internal/ippool"
	"github.com/ignite/gatewayd/internal/pkg/logger"
	"github.com/ignite/gatewayd/internal/provider"
	"github.com/ignite/gatewayd/internal/queue"
	"github.com/ignite/gatewayd/internal/ratelimit"
	"github.com/ignite/gatewayd/internal/validation"
)

// RetryPolicy is the configurable backoff schedule.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelays  []time.Duration
	JitterFrac  float64
}

// DefaultRetryPolicy is the out-of-the-box schedule: 6 attempts, delays
// [5,15,60,300,900,3600]s, ±25% jitter.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 6,
	BaseDelays: []time.Duration{
		5 * time.Second, 15 * time.Second, 60 * time.Second,
		300 * time.Second, 900 * time.Second, 3600 * time.Second,
	},
	JitterFrac: 0.25,
}

// NextDelay returns the backoff delay before attempt N (1-indexed),
// modulated by ±JitterFrac jitter.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.BaseDelays) {
		idx = len(p.BaseDelays) - 1
	}
	base := p.BaseDelays[idx]
	jitter := 1 + (rand.Float64()*2-1)*p.JitterFrac
	return time.Duration(float64(base) * jitter)
}

// MetricsSink receives pipeline observations; nil-safe no-op if unset.
type MetricsSink interface {
	ObserveQueueAge(d time.Duration)
	ObserveSendLatency(d time.Duration)
	IncrSuccess()
	IncrFailure(code string)
}

// Worker drives a single job through the per-job state machine.
type Worker struct {
	gate        *validation.Gate
	suppression domain.SuppressionStore
	throttle    domain.ThrottleStore
	limiter     *ratelimit.MXLimiter
	pools       *ippool.Selector
	driver      provider.Driver
	logs        domain.EmailLogStore
	outbox      domain.OutboxStore
	webhooks    domain.WebhookStore
	dlq         domain.DeadLetterStore
	retryPolicy RetryPolicy
	metrics     MetricsSink
}

// Config bundles Worker's collaborators.
type Config struct {
	Gate        *validation.Gate
	Suppression domain.SuppressionStore
	Throttle    domain.ThrottleStore
	Limiter     *ratelimit.MXLimiter
	Pools       *ippool.Selector
	Driver      provider.Driver
	Logs        domain.EmailLogStore
	Outbox      domain.OutboxStore
	Webhooks    domain.WebhookStore
	DLQ         domain.DeadLetterStore
	RetryPolicy RetryPolicy
	Metrics     MetricsSink
}

func New(cfg Config) *Worker {
	rp := cfg.RetryPolicy
	if rp.MaxAttempts == 0 {
		rp = DefaultRetryPolicy
	}
	return &Worker{
		gate:        cfg.Gate,
		suppression: cfg.Suppression,
		throttle:    cfg.Throttle,
		limiter:     cfg.Limiter,
		pools:       cfg.Pools,
		driver:      cfg.Driver,
		logs:        cfg.Logs,
		outbox:      cfg.Outbox,
		webhooks:    cfg.Webhooks,
		dlq:         cfg.DLQ,
		retryPolicy: rp,
		metrics:     cfg.Metrics,
	}
}

// outcome is what the caller (the claim loop) should do with a queue.Item
// after ProcessJob returns.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

// Result reports what ProcessJob decided for a job and, on retry, when.
type Result struct {
	Outcome   outcome
	RetryAt   time.Time
	LastError string
}

func (r Result) ShouldAck() bool       { return r.Outcome == outcomeAck }
func (r Result) ShouldRetry() bool     { return r.Outcome == outcomeRetry }
func (r Result) ShouldDeadLetter() bool { return r.Outcome == outcomeDeadLetter }

// ProcessJob runs the full send algorithm for one SendJob.
func (w *Worker) ProcessJob(ctx context.Context, item queue.Item) Result {
	job := item.Job

	queueAge := time.Since(job.EnqueuedAt)
	if w.metrics != nil {
		w.metrics.ObserveQueueAge(queueAge)
	}

	html, err := w.gate.Validate(ctx, &job)
	if err != nil {
		return w.terminalFailure(ctx, job, err, "validation failed")
	}

	suppressed, err := w.suppression.IsSuppressed(ctx, job.TenantID, job.To)
	if err != nil {
		return w.retryable(ctx, job, item.Attempt, errortaxonomy.Transient("suppression_check_failed", err.Error()))
	}
	if suppressed {
		return w.terminalFailure(ctx, job, errortaxonomy.Validation("suppressed", "recipient is suppressed"), "recipient suppressed")
	}

	if w.throttle != nil {
		today := time.Now().UTC().Format("2006-01-02")
		th, err := w.throttle.Get(ctx, job.TenantID, today)
		if err == nil && th != nil && th.Exceeded() {
			return w.terminalFailure(ctx, job, errortaxonomy.Permanent("throttle_block", "tenant over warm-up limit for today"), "warm-up throttle block")
		}
	}

	rl, err := w.limiter.Check(ctx, job.To)
	if err != nil {
		return w.retryable(ctx, job, item.Attempt, errortaxonomy.Transient("rate_limit_check_failed", err.Error()))
	}
	if !rl.Allowed {
		return Result{Outcome: outcomeRetry, RetryAt: time.Now().Add(time.Duration(rl.RetryAfterMS) * time.Millisecond), LastError: "rate_limited"}
	}

	var poolID string
	if pool, err := w.pools.Select(ctx, ippool.Request{TenantID: job.TenantID}); err == nil {
		poolID = pool.ID
	}

	msg := &domain.ResolvedMessage{
		OutboxID:  job.OutboxID,
		TenantID:  job.TenantID,
		RequestID: job.RequestID,
		To:        job.To,
		CC:        job.CC,
		BCC:       job.BCC,
		Subject:   job.Subject,
		HTML:      html,
		ReplyTo:   job.ReplyTo,
		Headers:   job.Headers,
		Tags:      job.Tags,
		PoolID:    poolID,
	}

	start := time.Now()
	sendResult, err := w.driver.SendEmail(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		var classified *errortaxonomy.Error
		if !errortaxonomyAs(err, &classified) || classified.Retryable {
			return w.retryable(ctx, job, item.Attempt, err)
		}
		return w.terminalFailure(ctx, job, err, "provider rejected message")
	}

	if w.metrics != nil {
		w.metrics.ObserveSendLatency(duration)
		w.metrics.IncrSuccess()
	}

	now := time.Now()
	_ = w.logs.Upsert(ctx, &domain.EmailLog{
		OutboxID:          job.OutboxID,
		TenantID:          job.TenantID,
		To:                job.To,
		Subject:           job.Subject,
		Status:            domain.EmailStatusSent,
		ProviderMessageID: sendResult.ProviderMessageID,
		Attempts:          item.Attempt + 1,
		DurationMS:        duration.Milliseconds(),
		SentAt:            &now,
	})
	_ = w.logs.AppendEvent(ctx, &domain.EmailEvent{
		Type: domain.EventSent,
		Metadata: map[string]interface{}{
			"provider_message_id": sendResult.ProviderMessageID,
			"duration_ms":          duration.Milliseconds(),
		},
		CreatedAt: now,
	})
	_ = w.outbox.MarkSent(ctx, job.OutboxID, now)
	if w.throttle != nil {
		_ = w.throttle.IncrSent(ctx, job.TenantID, now.UTC().Format("2006-01-02"))
	}

	return Result{Outcome: outcomeAck}
}

func (w *Worker) retryable(ctx context.Context, job domain.SendJob, attempt int, err error) Result {
	code, msg := errortaxonomy.Describe(err)
	if w.metrics != nil {
		w.metrics.IncrFailure(code)
	}
	lastError := fmt.Sprintf("%s:%s", code, msg)

	_ = w.outbox.MarkRetrying(ctx, job.OutboxID, lastError)
	_ = w.logs.Upsert(ctx, &domain.EmailLog{
		OutboxID: job.OutboxID,
		TenantID: job.TenantID,
		To:       job.To,
		Subject:  job.Subject,
		Status:   domain.EmailStatusRetrying,
		Attempts: attempt + 1,
	})
	_ = w.logs.AppendEvent(ctx, &domain.EmailEvent{
		Type:      domain.EventRetrying,
		Metadata:  map[string]interface{}{"error": lastError, "attempt": attempt + 1},
		CreatedAt: time.Now(),
	})

	if attempt+1 >= w.retryPolicy.MaxAttempts {
		w.parkInDLQ(ctx, job, attempt+1, lastError)
		return Result{Outcome: outcomeDeadLetter, LastError: lastError}
	}

	return Result{
		Outcome:   outcomeRetry,
		RetryAt:   time.Now().Add(w.retryPolicy.NextDelay(attempt + 1)),
		LastError: lastError,
	}
}

func (w *Worker) terminalFailure(ctx context.Context, job domain.SendJob, err error, context_ string) Result {
	code, msg := errortaxonomy.Describe(err)
	lastError := fmt.Sprintf("%s:%s", code, msg)
	if w.metrics != nil {
		w.metrics.IncrFailure(code)
	}

	_ = w.outbox.MarkFailed(ctx, job.OutboxID, lastError)
	_ = w.logs.Upsert(ctx, &domain.EmailLog{
		OutboxID:    job.OutboxID,
		TenantID:    job.TenantID,
		To:          job.To,
		Subject:     job.Subject,
		Status:      domain.EmailStatusFailed,
		ErrorCode:   code,
		ErrorReason: msg,
	})
	_ = w.logs.AppendEvent(ctx, &domain.EmailEvent{
		Type:      domain.EventFailed,
		Metadata:  map[string]interface{}{"error": lastError, "context": context_},
		CreatedAt: time.Now(),
	})

	logger.Warn("job failed terminally", "outbox_id", job.OutboxID, "error", lastError)
	return Result{Outcome: outcomeAck, LastError: lastError}
}

func (w *Worker) parkInDLQ(ctx context.Context, job domain.SendJob, attempts int, lastError string) {
	if w.dlq == nil {
		return
	}
	_ = w.dlq.Park(ctx, &domain.DeadLetterEntry{
		ID:        uuid.NewString(),
		OutboxID:  job.OutboxID,
		TenantID:  job.TenantID,
		Job:       job,
		LastError: lastError,
		Attempts:  attempts,
		DeadAt:    time.Now(),
	})
}

func errortaxonomyAs(err error, target **errortaxonomy.Error) bool {
	return errortaxonomy.As(err, target)
}
