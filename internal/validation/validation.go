// Package validation implements the four-stage ordered pre-send gate:
// integrity, outbox, recipient, template. A failure at any stage skips the
// rest; all failures are non-retryable.
package validation

import (
	"context"
	"regexp"
	"strings"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
)

const (
	maxHTMLBytes    = 256 * 1024
	maxSubjectChars = 998
)

var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	scriptTagRegexp  = regexp.MustCompile(`(?i)<script`)
	jsSchemeRegexp   = regexp.MustCompile(`(?i)javascript:`)
	eventAttrRegexp  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// Gate runs the four ordered checks against a SendJob before it reaches the
// provider driver.
type Gate struct {
	outbox     domain.OutboxStore
	recipients domain.RecipientStore
}

func NewGate(outbox domain.OutboxStore, recipients domain.RecipientStore) *Gate {
	return &Gate{outbox: outbox, recipients: recipients}
}

// Validate runs integrity, outbox, recipient, and template checks in order,
// returning the first *errortaxonomy.Error encountered. On
// success it returns the resolved HTML body so callers don't re-fetch it.
func (g *Gate) Validate(ctx context.Context, job *domain.SendJob) (html string, err error) {
	if err := validateIntegrity(job); err != nil {
		return "", err
	}

	entry, err := g.validateOutbox(ctx, job)
	if err != nil {
		return "", err
	}

	if err := g.validateRecipient(ctx, job); err != nil {
		return "", err
	}

	return g.validateTemplate(ctx, job, entry)
}

// validateIntegrity is check 1: structural validation of the job payload.
func validateIntegrity(job *domain.SendJob) error {
	if job.OutboxID == "" || job.TenantID == "" || job.To == "" || job.HTMLRef == "" {
		return errortaxonomy.Validation("invalid_payload", "missing required field")
	}
	return nil
}

// validateOutbox is check 2: the outbox row must exist and its tenant must
// match the job's.
func (g *Gate) validateOutbox(ctx context.Context, job *domain.SendJob) (*domain.OutboxEntry, error) {
	entry, err := g.outbox.Get(ctx, job.OutboxID)
	if err != nil || entry == nil {
		return nil, errortaxonomy.Validation("outbox_not_found", "outbox entry not found")
	}
	if entry.TenantID != job.TenantID {
		return nil, errortaxonomy.Validation("invalid_payload", "outbox tenant mismatch")
	}
	return entry, nil
}

// validateRecipient is check 3: if a recipient_id is present, the recipient
// must exist, not be soft-deleted, belong to the same tenant, and its
// stored email must match the payload. The payload email is always
// regex-validated regardless of whether a recipient_id is present.
func (g *Gate) validateRecipient(ctx context.Context, job *domain.SendJob) error {
	if !emailRegexp.MatchString(job.To) {
		return errortaxonomy.Validation("invalid_email", "recipient email fails format check")
	}

	if job.Recipient.RecipientID == "" {
		return nil
	}

	rec, err := g.recipients.Get(ctx, job.Recipient.RecipientID)
	if err != nil || rec == nil {
		return errortaxonomy.Validation("recipient_not_found", "recipient not found")
	}
	if rec.SoftDeleted() || rec.TenantID != job.TenantID {
		return errortaxonomy.Validation("recipient_not_found", "recipient deleted or tenant mismatch")
	}
	if !strings.EqualFold(rec.Email, job.To) {
		return errortaxonomy.Validation("invalid_payload", "recipient email does not match payload")
	}
	return nil
}

// validateTemplate is check 4: fetch the outbox HTML, enforce size and
// subject-length limits, and reject obviously unsafe markup.
func (g *Gate) validateTemplate(ctx context.Context, job *domain.SendJob, entry *domain.OutboxEntry) (string, error) {
	html := entry.HTML
	if html == "" {
		fetched, err := g.outbox.GetHTML(ctx, job.OutboxID)
		if err != nil {
			return "", errortaxonomy.Validation("invalid_template", "failed to fetch html body")
		}
		html = fetched
	}

	if html == "" {
		return "", errortaxonomy.Validation("invalid_template", "html body is empty")
	}
	if len(html) > maxHTMLBytes {
		return "", errortaxonomy.Validation("invalid_template", "html body exceeds maximum size")
	}
	if len(job.Subject) > maxSubjectChars {
		return "", errortaxonomy.Validation("invalid_template", "subject exceeds maximum length")
	}
	if scriptTagRegexp.MatchString(html) || jsSchemeRegexp.MatchString(html) || eventAttrRegexp.MatchString(html) {
		return "", errortaxonomy.Validation("invalid_template", "html body contains disallowed script content")
	}

	return html, nil
}
