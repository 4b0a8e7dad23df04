package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
)

type fakeLogStore struct {
	byMessageID map[string]*domain.EmailLog
	events      []*domain.EmailEvent
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{byMessageID: map[string]*domain.EmailLog{}}
}

func (f *fakeLogStore) Upsert(ctx context.Context, log *domain.EmailLog) error {
	f.byMessageID[log.ProviderMessageID] = log
	return nil
}
func (f *fakeLogStore) AppendEvent(ctx context.Context, ev *domain.EmailEvent) error {
	f.events = append(f.events, ev)
	return nil
}
func (f *fakeLogStore) GetByOutboxID(ctx context.Context, outboxID string) (*domain.EmailLog, error) {
	return nil, nil
}
func (f *fakeLogStore) GetByProviderMessageID(ctx context.Context, messageID string) (*domain.EmailLog, error) {
	return f.byMessageID[messageID], nil
}

type fakeSuppressionStore struct {
	upserted []*domain.Suppression
}

func (f *fakeSuppressionStore) IsSuppressed(ctx context.Context, tenantID, email string) (bool, error) {
	for _, s := range f.upserted {
		if s.TenantID == tenantID && s.Email == email {
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeSuppressionStore) Upsert(ctx context.Context, s *domain.Suppression) error {
	f.upserted = append(f.upserted, s)
	return nil
}
func (f *fakeSuppressionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fakeTrackingStore struct {
	opens  int
	clicks int
}

func (f *fakeTrackingStore) RecordOpen(ctx context.Context, emailLogID, trackingID, userAgent, ip string) error {
	f.opens++
	return nil
}
func (f *fakeTrackingStore) RecordClick(ctx context.Context, emailLogID, trackingID, url, userAgent, ip string) error {
	f.clicks++
	return nil
}

type fakeWebhookStore struct {
	hooks      []*domain.Webhook
	deliveries []*domain.WebhookDelivery
}

func (f *fakeWebhookStore) ListActiveForTenant(ctx context.Context, tenantID string, ev domain.WebhookEventType) ([]*domain.Webhook, error) {
	var out []*domain.Webhook
	for _, h := range f.hooks {
		if h.TenantID == tenantID && h.IsActive && h.Subscribes(domain.EmailEventType(ev)) {
			out = append(out, h)
		}
	}
	return out, nil
}
func (f *fakeWebhookStore) EnqueueDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	f.deliveries = append(f.deliveries, d)
	return nil
}
func (f *fakeWebhookStore) ClaimDueDeliveries(ctx context.Context, limit int) ([]*domain.WebhookDelivery, error) {
	return nil, nil
}
func (f *fakeWebhookStore) UpdateDeliveryOutcome(ctx context.Context, d *domain.WebhookDelivery) error {
	return nil
}
func (f *fakeWebhookStore) Get(ctx context.Context, webhookID string) (*domain.Webhook, error) {
	for _, h := range f.hooks {
		if h.ID == webhookID {
			return h, nil
		}
	}
	return nil, nil
}

const sampleDSN = `Reporting-MTA: dns;mail.example.com

Final-Recipient: rfc822;bob@example.com
Action: failed
Status: 5.1.1
Diagnostic-Code: smtp; 550 5.1.1 user unknown`

const sampleARFContentType = `multipart/report; report-type=feedback-report; boundary="ARFBOUNDARY"`

const sampleARF = "--ARFBOUNDARY\r\n" +
	"Content-Type: message/feedback-report\r\n\r\n" +
	"Feedback-Type: abuse\r\n" +
	"User-Agent: SomeGenerator/1.0\r\n" +
	"Version: 1\r\n" +
	"Original-Mail-From: carol@example.com\r\n" +
	"Original-Rcpt-To: rfc822;carol@example.com\r\n" +
	"\r\n--ARFBOUNDARY\r\n" +
	"Content-Type: text/rfc822-headers\r\n\r\n" +
	"From: carol@example.com\r\n" +
	"To: feedback@example.com\r\n" +
	"Subject: complaint\r\n" +
	"\r\n--ARFBOUNDARY--\r\n"

func TestProcess_HardBounceSuppresses(t *testing.T) {
	logs := newFakeLogStore()
	logs.byMessageID["msg-1"] = &domain.EmailLog{ID: "log-1", TenantID: "t1", To: "bob@example.com", ProviderMessageID: "msg-1"}
	supp := &fakeSuppressionStore{}
	w := New(Config{Logs: logs, Suppression: supp, Tracking: &fakeTrackingStore{}, Webhooks: &fakeWebhookStore{}})

	err := w.Process(context.Background(), ProviderEvent{
		Provider: "ses", Type: EventBounce, MessageID: "msg-1", RawPayload: sampleDSN,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(supp.upserted) != 1 || supp.upserted[0].Reason != domain.ReasonHardBounce {
		t.Fatalf("expected one hard_bounce suppression, got %+v", supp.upserted)
	}
	if logs.byMessageID["msg-1"].BounceType != "hard" {
		t.Fatalf("expected bounce_type=hard, got %q", logs.byMessageID["msg-1"].BounceType)
	}
	if len(logs.events) != 1 || logs.events[0].Type != domain.EventBounced {
		t.Fatalf("expected one bounced event, got %+v", logs.events)
	}
}

func TestProcess_ComplaintAlwaysSuppressesAndEnqueuesWebhook(t *testing.T) {
	logs := newFakeLogStore()
	logs.byMessageID["msg-2"] = &domain.EmailLog{ID: "log-2", TenantID: "t1", To: "carol@example.com", ProviderMessageID: "msg-2"}
	supp := &fakeSuppressionStore{}
	hooks := &fakeWebhookStore{hooks: []*domain.Webhook{
		{ID: "wh-1", TenantID: "t1", IsActive: true, Events: []domain.WebhookEventType{domain.WebhookEventComplained}},
	}}
	w := New(Config{Logs: logs, Suppression: supp, Tracking: &fakeTrackingStore{}, Webhooks: hooks})

	err := w.Process(context.Background(), ProviderEvent{
		Provider: "ses", Type: EventComplaint, MessageID: "msg-2", ContentType: sampleARFContentType, RawPayload: sampleARF,
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(supp.upserted) != 1 || supp.upserted[0].Reason != domain.ReasonSpamComplaint {
		t.Fatalf("expected one spam_complaint suppression, got %+v", supp.upserted)
	}
	if logs.byMessageID["msg-2"].ComplaintFeedbackType != "abuse" {
		t.Fatalf("expected complaint_feedback_type=abuse, got %q", logs.byMessageID["msg-2"].ComplaintFeedbackType)
	}
	if len(hooks.deliveries) != 1 {
		t.Fatalf("expected one webhook delivery enqueued, got %d", len(hooks.deliveries))
	}
}

func TestProcess_UntrackedMessageIsSkipped(t *testing.T) {
	logs := newFakeLogStore()
	w := New(Config{Logs: logs, Suppression: &fakeSuppressionStore{}, Tracking: &fakeTrackingStore{}, Webhooks: &fakeWebhookStore{}})

	err := w.Process(context.Background(), ProviderEvent{Type: EventBounce, MessageID: "unknown-msg", RawPayload: sampleDSN})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(logs.events) != 0 {
		t.Fatalf("expected no events for untracked message")
	}
}

func TestProcess_OpenAndClickUpdateTracking(t *testing.T) {
	logs := newFakeLogStore()
	logs.byMessageID["msg-3"] = &domain.EmailLog{ID: "log-3", TenantID: "t1", To: "dave@example.com", ProviderMessageID: "msg-3"}
	tracking := &fakeTrackingStore{}
	w := New(Config{Logs: logs, Suppression: &fakeSuppressionStore{}, Tracking: tracking, Webhooks: &fakeWebhookStore{}})

	if err := w.Process(context.Background(), ProviderEvent{Type: EventOpen, MessageID: "msg-3"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.Process(context.Background(), ProviderEvent{Type: EventClick, MessageID: "msg-3", ClickedURL: "https://example.com/a"}); err != nil {
		t.Fatalf("click: %v", err)
	}
	if tracking.opens != 1 || tracking.clicks != 1 {
		t.Fatalf("expected 1 open and 1 click, got opens=%d clicks=%d", tracking.opens, tracking.clicks)
	}
}
