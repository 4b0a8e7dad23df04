package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

func lowerHeader(h string) string { return strings.ToLower(h) }

// SMTPDriver is the SMTP provider driver. Each send dials its own SMTP
// connection and closes it afterwards; connections are not pooled.
type SMTPDriver struct {
	client             *mail.Client
	fromName           string
	fromAddress        string
	returnPathDomain   string
	unsubscribeBaseURL string
}

// SMTPDriverConfig configures NewSMTPDriver.
type SMTPDriverConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Secure             bool
	FromName           string
	FromAddress        string
	ReturnPathDomain   string
	UnsubscribeBaseURL string
}

// NewSMTPDriver builds a go-mail SMTP client (one connection per send) from
// a static host/port/auth configuration.
func NewSMTPDriver(cfg SMTPDriverConfig) (*SMTPDriver, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(10 * time.Second),
	}
	if cfg.Secure {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPDriver{
		client:             client,
		fromName:           cfg.FromName,
		fromAddress:        cfg.FromAddress,
		returnPathDomain:   cfg.ReturnPathDomain,
		unsubscribeBaseURL: cfg.UnsubscribeBaseURL,
	}, nil
}

func (d *SMTPDriver) Name() string { return "smtp" }

// verpReturnPath computes the per-recipient VERP-style envelope return
// path: bounce+<hex16>@<return-path-domain> where hex16 is the first 16
// hex chars of sha256(recipient:unix_millis).
func verpReturnPath(recipient, domainName string, now time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", recipient, now.UnixMilli())))
	hex16 := hex.EncodeToString(sum[:])[:16]
	return fmt.Sprintf("bounce+%s@%s", hex16, domainName)
}

// SendEmail composes and sends msg over SMTP.
func (d *SMTPDriver) SendEmail(ctx context.Context, msg *domain.ResolvedMessage) (*domain.SendResult, error) {
	m := mail.NewMsg()

	if err := m.FromFormat(d.fromName, d.fromAddress); err != nil {
		return nil, errortaxonomy.Validation("invalid_payload", "invalid from address: "+err.Error())
	}
	if err := m.To(msg.To); err != nil {
		return nil, errortaxonomy.Validation("invalid_payload", "invalid recipient: "+err.Error())
	}
	if len(msg.CC) > 0 {
		_ = m.Cc(msg.CC...)
	}
	if len(msg.BCC) > 0 {
		_ = m.Bcc(msg.BCC...)
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	m.SetMessageID()
	m.SetGenHeader("X-Request-Id", msg.RequestID)
	m.SetGenHeader("X-Outbox-Id", msg.OutboxID)
	headerSet := map[string]bool{"x-request-id": true, "x-outbox-id": true}
	for k, v := range msg.Headers {
		m.SetGenHeader(mail.Header(k), v)
		headerSet[lowerHeader(k)] = true
	}
	if msg.ReplyTo != "" {
		_ = m.ReplyTo(msg.ReplyTo)
	}
	if d.unsubscribeBaseURL != "" && !headerSet["list-unsubscribe"] {
		m.SetGenHeader("List-Unsubscribe", fmt.Sprintf("<%s?to=%s>", d.unsubscribeBaseURL, msg.To))
	}

	envelopeFrom := verpReturnPath(msg.To, d.returnPathDomain, time.Now())
	if err := m.EnvelopeFrom(envelopeFrom); err != nil {
		return nil, errortaxonomy.Transient("smtp_envelope", "failed to set envelope from: "+err.Error())
	}

	if err := d.client.DialAndSendWithContext(ctx, m); err != nil {
		return nil, errortaxonomy.Classify("", err.Error())
	}

	log.Printf("[provider/smtp] sent to %s via %s", logger.RedactEmail(msg.To), envelopeFrom)

	return &domain.SendResult{
		Success:      true,
		Provider:     d.Name(),
		EnvelopeFrom: envelopeFrom,
	}, nil
}
