// Package webhookdelivery implements the webhook delivery worker: sign and
// POST each queued WebhookDelivery to the tenant's registered endpoint,
// classify the outcome, and schedule retries or terminal failure.
package webhookdelivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

// MaxAttempts is the total number of POST attempts allowed before a
// delivery is marked failed permanently.
const MaxAttempts = 3

// maxResponseBodyBytes caps how much of a response body is read;
// WebhookDelivery.SetResponseBody then keeps at most 1000 chars of it.
const maxResponseBodyBytes = 4096

// userAgent is sent on every delivery attempt.
const userAgent = "gatewayd-webhooks/1.0"

// retryDelay returns the backoff before attempt N (1-indexed): 5*2^(n-1)s.
func retryDelay(attempt int) time.Duration {
	d := 5 * time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// HTTPDoer is satisfied by *http.Client; narrowed for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Worker claims due WebhookDelivery rows and attempts delivery.
type Worker struct {
	store   domain.WebhookStore
	client  HTTPDoer
	limiter *rate.Limiter
}

// Config bundles Worker's collaborators. Limit/Burst default to the
// budget of 100 requests/sec, burst 10, shared across all
// tenants' webhooks.
type Config struct {
	Store  domain.WebhookStore
	Client HTTPDoer
	Limit  rate.Limit
	Burst  int
}

func New(cfg Config) *Worker {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	limit := cfg.Limit
	if limit == 0 {
		limit = rate.Limit(100)
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 10
	}
	return &Worker{
		store:   cfg.Store,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ProcessDue claims up to limit due deliveries and attempts each in turn,
// respecting the shared rate budget. It returns the number attempted.
func (w *Worker) ProcessDue(ctx context.Context, limit int) (int, error) {
	due, err := w.store.ClaimDueDeliveries(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("claim due deliveries: %w", err)
	}
	for _, d := range due {
		if err := w.limiter.Wait(ctx); err != nil {
			return 0, ctx.Err()
		}
		w.attempt(ctx, d)
	}
	return len(due), nil
}

// attempt runs a single POST and persists the outcome. It never returns an
// error: failures are recorded on the WebhookDelivery row itself.
func (w *Worker) attempt(ctx context.Context, d *domain.WebhookDelivery) {
	hook, err := w.store.Get(ctx, d.WebhookID)
	if err != nil || hook == nil || !hook.IsActive {
		d.Status = domain.WebhookDeliveryFailed
		d.LastError = "webhook not found or inactive"
		_ = w.store.UpdateDeliveryOutcome(ctx, d)
		return
	}

	d.Attempts++

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(d.Payload))
	if err != nil {
		w.finish(ctx, d, false, 0, "", fmt.Sprintf("build request: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Webhook-Event", string(d.EventType))
	req.Header.Set("X-Webhook-Delivery-Id", d.ID)
	req.Header.Set("X-Webhook-Signature", sign(hook.Secret, d.Payload))

	resp, err := w.client.Do(req)
	if err != nil {
		w.finish(ctx, d, isRetryableNetErr(err), 0, "", err.Error())
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	var lastErr string
	if !success {
		lastErr = fmt.Sprintf("http %d", resp.StatusCode)
	}
	w.finish(ctx, d, retryable, resp.StatusCode, string(body), lastErr)
}

// finish updates d in place per the outcome rules and persists it. success
// is implied by lastErr == "" (set by the caller only for non-2xx/network-
// error paths).
func (w *Worker) finish(ctx context.Context, d *domain.WebhookDelivery, retryable bool, statusCode int, body, lastErr string) {
	d.ResponseCode = statusCode
	d.SetResponseBody(body)
	d.LastError = lastErr

	switch {
	case lastErr == "":
		d.Status = domain.WebhookDeliverySuccess
		now := time.Now()
		d.DeliveredAt = &now
	case !retryable || d.Attempts >= MaxAttempts:
		d.Status = domain.WebhookDeliveryFailed
	default:
		d.Status = domain.WebhookDeliveryRetrying
		next := time.Now().Add(retryDelay(d.Attempts))
		d.NextAttemptAt = &next
	}

	if err := w.store.UpdateDeliveryOutcome(ctx, d); err != nil {
		logger.Error("persist webhook delivery outcome", "delivery_id", d.ID, "error", err.Error())
	}
}

// sign returns the hex-encoded HMAC-SHA256 of payload under secret, the
// value sent as X-Webhook-Signature.
func sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// isRetryableNetErr reports whether a client.Do failure is a transport-level
// error (connection refused, timeout, DNS failure, reset). http.Client only
// ever returns a non-nil error for exactly this class of failure (a
// response with a non-2xx status is not an error), so any such error is
// retryable.
func isRetryableNetErr(err error) bool {
	return err != nil
}
