package provider

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/errortaxonomy"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

// APIDriver is the SES-shaped provider driver: it resolves a tenant's
// from-address before every send and tags the message with
// tenant_id/outbox_id/request_id plus caller tags (up to 47).
type APIDriver struct {
	client          *sesv2.Client
	region          string
	defaultFrom     string
	configurationSet string
	tenants         TenantResolver
	chaosSES429     bool
}

// APIDriverConfig configures NewAPIDriver.
type APIDriverConfig struct {
	AccessKey        string
	SecretKey        string
	Region           string
	DefaultFrom      string
	ConfigurationSet string
	ChaosSES429      bool
}

// NewAPIDriver builds an API driver backed by AWS SES v2.
func NewAPIDriver(cfg APIDriverConfig, tenants TenantResolver) (*APIDriver, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &APIDriver{
		client:            sesv2.NewFromConfig(awsCfg),
		region:            region,
		defaultFrom:       cfg.DefaultFrom,
		configurationSet:  cfg.ConfigurationSet,
		tenants:           tenants,
		chaosSES429:       cfg.ChaosSES429,
	}, nil
}

func (d *APIDriver) Name() string { return "api" }

// resolveFrom implements the tenant→from-address resolution: reject
// suspended tenants; prefer the tenant's verified default domain, else fall
// back to the driver's configured from_address.
func (d *APIDriver) resolveFrom(ctx context.Context, tenantID string) (string, error) {
	tenant, err := d.tenants.Get(ctx, tenantID)
	if err != nil {
		return "", errortaxonomy.Permanent("tenant_not_found", "tenant not found")
	}
	if tenant.IsSuspended {
		return "", errortaxonomy.Permanent("tenant_suspended", "tenant is suspended")
	}

	if tenant.DefaultFromAddress != "" && tenant.DefaultDomainID != "" {
		dom, err := d.tenants.GetDomain(ctx, tenant.DefaultDomainID)
		if err == nil && dom.Status == domain.DomainVerified {
			name := tenant.DefaultFromName
			if name == "" {
				return tenant.DefaultFromAddress, nil
			}
			return fmt.Sprintf("%s <%s>", name, tenant.DefaultFromAddress), nil
		}
	}

	log.Printf("[provider/api] tenant %s has no verified default domain, falling back to driver from_address", tenantID)
	return d.defaultFrom, nil
}

// SendEmail sends msg through SES.
func (d *APIDriver) SendEmail(ctx context.Context, msg *domain.ResolvedMessage) (*domain.SendResult, error) {
	if d.chaosSES429 {
		return nil, errortaxonomy.Quota("throttling", "chaos_ses_429: synthetic throttling error", "1000")
	}

	from, err := d.resolveFrom(ctx, msg.TenantID)
	if err != nil {
		return nil, err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  []string{msg.To},
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: buildTags(msg),
	}
	if d.configurationSet != "" {
		input.ConfigurationSetName = aws.String(d.configurationSet)
	}
	replyTo := msg.ReplyTo
	if replyTo != "" {
		input.ReplyToAddresses = []string{replyTo}
	}

	out, err := d.client.SendEmail(ctx, input)
	if err != nil {
		return nil, errortaxonomy.Classify("", err.Error())
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}

	log.Printf("[provider/api] sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &domain.SendResult{
		Success:           true,
		ProviderMessageID: messageID,
		Provider:          d.Name(),
		EnvelopeFrom:      from,
	}, nil
}

// GetQuota reports the account's SES sending quota.
func (d *APIDriver) GetQuota(ctx context.Context) (*domain.QuotaInfo, error) {
	out, err := d.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return nil, errortaxonomy.Classify("", err.Error())
	}
	q := &domain.QuotaInfo{}
	if out.SendQuota != nil {
		q.Max24HourSend = out.SendQuota.Max24HourSend
		q.SentLast24Hours = out.SendQuota.SentLast24Hours
		q.MaxSendRate = out.SendQuota.MaxSendRate
	}
	return q, nil
}

const maxCustomTags = 47

func buildTags(msg *domain.ResolvedMessage) []types.MessageTag {
	tags := []types.MessageTag{
		{Name: aws.String("tenant_id"), Value: aws.String(msg.TenantID)},
		{Name: aws.String("outbox_id"), Value: aws.String(msg.OutboxID)},
		{Name: aws.String("request_id"), Value: aws.String(msg.RequestID)},
	}
	for i, tag := range msg.Tags {
		if i >= maxCustomTags {
			break
		}
		tags = append(tags, types.MessageTag{Name: aws.String(fmt.Sprintf("tag_%d", i)), Value: aws.String(tag)})
	}
	return tags
}
