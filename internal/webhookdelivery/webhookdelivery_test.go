package webhookdelivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

type fakeStore struct {
	hooks      map[string]*domain.Webhook
	due        []*domain.WebhookDelivery
	outcomes   []*domain.WebhookDelivery
}

func (f *fakeStore) ListActiveForTenant(ctx context.Context, tenantID string, ev domain.WebhookEventType) ([]*domain.Webhook, error) {
	return nil, nil
}
func (f *fakeStore) EnqueueDelivery(ctx context.Context, d *domain.WebhookDelivery) error { return nil }
func (f *fakeStore) ClaimDueDeliveries(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error) {
	due := f.due
	f.due = nil
	return due, nil
}
func (f *fakeStore) UpdateDeliveryOutcome(ctx context.Context, d *domain.WebhookDelivery) error {
	f.outcomes = append(f.outcomes, d)
	return nil
}
func (f *fakeStore) Get(ctx context.Context, webhookID string) (*domain.Webhook, error) {
	return f.hooks[webhookID], nil
}

type fakeDoer struct {
	status  int
	body    string
	err     error
	lastReq *http.Request
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.lastReq = req
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(strings.NewReader(d.body)),
		Header:     make(http.Header),
	}, nil
}

func TestProcessDue_SuccessMarksDelivered(t *testing.T) {
	store := &fakeStore{
		hooks: map[string]*domain.Webhook{"wh-1": {ID: "wh-1", IsActive: true, URL: "https://example.com/hook", Secret: "s3cr3t"}},
		due:   []*domain.WebhookDelivery{{ID: "d-1", WebhookID: "wh-1", EventType: domain.WebhookEventSent, Payload: []byte(`{"email":"a@b.com"}`)}},
	}
	doer := &fakeDoer{status: 200, body: "ok"}
	w := New(Config{Store: store, Client: doer})

	n, err := w.ProcessDue(context.Background(), 10)
	if err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 processed, got %d", n)
	}
	if len(store.outcomes) != 1 {
		t.Fatalf("expected 1 outcome recorded")
	}
	out := store.outcomes[0]
	if out.Status != domain.WebhookDeliverySuccess {
		t.Fatalf("expected success, got %s", out.Status)
	}
	if out.DeliveredAt == nil {
		t.Fatalf("expected DeliveredAt set")
	}
	if out.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", out.Attempts)
	}

	expectedSig := func() string {
		h := hmac.New(sha256.New, []byte("s3cr3t"))
		h.Write([]byte(`{"email":"a@b.com"}`))
		return hex.EncodeToString(h.Sum(nil))
	}()
	if got := doer.lastReq.Header.Get("X-Webhook-Signature"); got != expectedSig {
		t.Fatalf("signature mismatch: got %s want %s", got, expectedSig)
	}
	if got := doer.lastReq.Header.Get("X-Webhook-Event"); got != "sent" {
		t.Fatalf("expected X-Webhook-Event=sent, got %s", got)
	}
}

func TestProcessDue_ServerErrorSchedulesRetry(t *testing.T) {
	store := &fakeStore{
		hooks: map[string]*domain.Webhook{"wh-1": {ID: "wh-1", IsActive: true, URL: "https://example.com/hook", Secret: "s"}},
		due:   []*domain.WebhookDelivery{{ID: "d-2", WebhookID: "wh-1", Attempts: 0, Payload: []byte(`{}`)}},
	}
	doer := &fakeDoer{status: 503, body: "unavailable"}
	w := New(Config{Store: store, Client: doer})

	if _, err := w.ProcessDue(context.Background(), 10); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	out := store.outcomes[0]
	if out.Status != domain.WebhookDeliveryRetrying {
		t.Fatalf("expected retrying, got %s", out.Status)
	}
	if out.NextAttemptAt == nil || out.NextAttemptAt.Before(time.Now()) {
		t.Fatalf("expected future NextAttemptAt")
	}
}

func TestProcessDue_ClientErrorFailsPermanently(t *testing.T) {
	store := &fakeStore{
		hooks: map[string]*domain.Webhook{"wh-1": {ID: "wh-1", IsActive: true, URL: "https://example.com/hook", Secret: "s"}},
		due:   []*domain.WebhookDelivery{{ID: "d-3", WebhookID: "wh-1", Payload: []byte(`{}`)}},
	}
	doer := &fakeDoer{status: 422, body: "unprocessable"}
	w := New(Config{Store: store, Client: doer})

	if _, err := w.ProcessDue(context.Background(), 10); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	out := store.outcomes[0]
	if out.Status != domain.WebhookDeliveryFailed {
		t.Fatalf("expected failed, got %s", out.Status)
	}
}

func TestProcessDue_ExhaustsAttemptsAfterMax(t *testing.T) {
	store := &fakeStore{
		hooks: map[string]*domain.Webhook{"wh-1": {ID: "wh-1", IsActive: true, URL: "https://example.com/hook", Secret: "s"}},
		due:   []*domain.WebhookDelivery{{ID: "d-4", WebhookID: "wh-1", Attempts: MaxAttempts - 1, Payload: []byte(`{}`)}},
	}
	doer := &fakeDoer{status: 500, body: "err"}
	w := New(Config{Store: store, Client: doer})

	if _, err := w.ProcessDue(context.Background(), 10); err != nil {
		t.Fatalf("ProcessDue: %v", err)
	}
	out := store.outcomes[0]
	if out.Status != domain.WebhookDeliveryFailed {
		t.Fatalf("expected failed after exhausting attempts, got %s", out.Status)
	}
	if out.Attempts != MaxAttempts {
		t.Fatalf("expected attempts=%d, got %d", MaxAttempts, out.Attempts)
	}
}
