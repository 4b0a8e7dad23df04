// Package provider implements the uniform send/validate/quota driver
// abstraction: an API driver (SES-shaped), an SMTP driver, each wrapped by
// a circuit breaker, composed into an ordered fallback set.
package provider

import (
	"context"
	"errors"

	"github.com/ignite/gatewayd/internal/domain"
)

// Driver is the capability set every provider transport implements.
type Driver interface {
	Name() string
	SendEmail(ctx context.Context, msg *domain.ResolvedMessage) (*domain.SendResult, error)
}

// QuotaDriver is implemented by drivers that can report remaining send
// quota (optional get_quota).
type QuotaDriver interface {
	GetQuota(ctx context.Context) (*domain.QuotaInfo, error)
}

// DomainVerifier is implemented by drivers that can verify_domain.
type DomainVerifier interface {
	VerifyDomain(ctx context.Context, domainName string) error
}

// TenantResolver looks up a tenant's from-address/domain for the API driver's
// tenant→from-address resolution step.
type TenantResolver interface {
	Get(ctx context.Context, tenantID string) (*domain.Tenant, error)
	GetDomain(ctx context.Context, domainID string) (*domain.Domain, error)
}

// ErrCircuitOpen is returned by a breaker-wrapped driver when the circuit is
// open.
var ErrCircuitOpen = errors.New("circuit_open")
