package validation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
)

type mockOutboxStore struct {
	entries map[string]*domain.OutboxEntry
	html    map[string]string
}

func (m *mockOutboxStore) Get(ctx context.Context, outboxID string) (*domain.OutboxEntry, error) {
	e, ok := m.entries[outboxID]
	if !ok {
		return nil, nil
	}
	return e, nil
}
func (m *mockOutboxStore) GetHTML(ctx context.Context, outboxID string) (string, error) {
	return m.html[outboxID], nil
}
func (m *mockOutboxStore) MarkSent(ctx context.Context, outboxID string, processedAt time.Time) error {
	return nil
}
func (m *mockOutboxStore) MarkFailed(ctx context.Context, outboxID, lastError string) error { return nil }
func (m *mockOutboxStore) MarkRetrying(ctx context.Context, outboxID, lastError string) error {
	return nil
}

type mockRecipientStore struct {
	recipients map[string]*domain.Recipient
}

func (m *mockRecipientStore) Get(ctx context.Context, recipientID string) (*domain.Recipient, error) {
	r, ok := m.recipients[recipientID]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func baseJob() *domain.SendJob {
	return &domain.SendJob{
		OutboxID: "ob1",
		TenantID: "t1",
		To:       "user@example.com",
		HTMLRef:  "ref1",
		Subject:  "hello",
	}
}

func codeOf(err error) string {
	var e *errortaxonomy.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func TestValidate_IntegrityFailsOnMissingField(t *testing.T) {
	g := NewGate(&mockOutboxStore{}, &mockRecipientStore{})
	job := baseJob()
	job.OutboxID = ""

	_, err := g.Validate(context.Background(), job)
	if codeOf(err) != "invalid_payload" {
		t.Fatalf("expected invalid_payload, got %v", err)
	}
}

func TestValidate_OutboxNotFound(t *testing.T) {
	g := NewGate(&mockOutboxStore{entries: map[string]*domain.OutboxEntry{}}, &mockRecipientStore{})
	_, err := g.Validate(context.Background(), baseJob())
	if codeOf(err) != "outbox_not_found" {
		t.Fatalf("expected outbox_not_found, got %v", err)
	}
}

func TestValidate_OutboxTenantMismatch(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "other-tenant", HTML: "<p>hi</p>"},
	}}
	g := NewGate(outbox, &mockRecipientStore{})
	_, err := g.Validate(context.Background(), baseJob())
	if codeOf(err) != "invalid_payload" {
		t.Fatalf("expected invalid_payload for tenant mismatch, got %v", err)
	}
}

func TestValidate_InvalidEmailFormat(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: "<p>hi</p>"},
	}}
	g := NewGate(outbox, &mockRecipientStore{})
	job := baseJob()
	job.To = "not-an-email"

	_, err := g.Validate(context.Background(), job)
	if codeOf(err) != "invalid_email" {
		t.Fatalf("expected invalid_email, got %v", err)
	}
}

func TestValidate_RecipientNotFound(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: "<p>hi</p>"},
	}}
	g := NewGate(outbox, &mockRecipientStore{recipients: map[string]*domain.Recipient{}})
	job := baseJob()
	job.Recipient.RecipientID = "r1"

	_, err := g.Validate(context.Background(), job)
	if codeOf(err) != "recipient_not_found" {
		t.Fatalf("expected recipient_not_found, got %v", err)
	}
}

func TestValidate_RecipientEmailMismatch(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: "<p>hi</p>"},
	}}
	recipients := &mockRecipientStore{recipients: map[string]*domain.Recipient{
		"r1": {ID: "r1", TenantID: "t1", Email: "different@example.com"},
	}}
	g := NewGate(outbox, recipients)
	job := baseJob()
	job.Recipient.RecipientID = "r1"

	_, err := g.Validate(context.Background(), job)
	if codeOf(err) != "invalid_payload" {
		t.Fatalf("expected invalid_payload for recipient email mismatch, got %v", err)
	}
}

func TestValidate_TemplateRejectsScriptTag(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: "<p>hi<script>alert(1)</script></p>"},
	}}
	g := NewGate(outbox, &mockRecipientStore{})
	_, err := g.Validate(context.Background(), baseJob())
	if codeOf(err) != "invalid_template" {
		t.Fatalf("expected invalid_template, got %v", err)
	}
}

func TestValidate_TemplateRejectsEventAttribute(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: `<img src=x onerror="alert(1)">`},
	}}
	g := NewGate(outbox, &mockRecipientStore{})
	_, err := g.Validate(context.Background(), baseJob())
	if codeOf(err) != "invalid_template" {
		t.Fatalf("expected invalid_template, got %v", err)
	}
}

func TestValidate_TemplateRejectsOversizedSubject(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: "<p>hi</p>"},
	}}
	g := NewGate(outbox, &mockRecipientStore{})
	job := baseJob()
	job.Subject = strings.Repeat("a", 999)

	_, err := g.Validate(context.Background(), job)
	if codeOf(err) != "invalid_template" {
		t.Fatalf("expected invalid_template for oversized subject, got %v", err)
	}
}

func TestValidate_Success(t *testing.T) {
	outbox := &mockOutboxStore{entries: map[string]*domain.OutboxEntry{
		"ob1": {ID: "ob1", TenantID: "t1", HTML: "<p>hi</p>"},
	}}
	g := NewGate(outbox, &mockRecipientStore{})

	html, err := g.Validate(context.Background(), baseJob())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if html != "<p>hi</p>" {
		t.Errorf("unexpected html: %q", html)
	}
}
