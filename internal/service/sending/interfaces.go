// Package sending defines the interfaces for email delivery through various ESPs.
//
// No package in this module implements or imports these interfaces; the
// send pipeline talks to provider.Driver directly.
package sending

import (
	"context"

	"github.com/ignite/gatewayd/internal/domain"
)

// Sender sends a single email through an ESP. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg *domain.ResolvedMessage) (*domain.SendResult, error)
}

// BatchSender extends Sender with batch delivery support. ESPs that support
// multi-recipient calls would implement this.
type BatchSender interface {
	Sender
	SendBatch(ctx context.Context, messages []*domain.ResolvedMessage) ([]domain.SendResult, error)
	MaxBatchSize() int
}

// SenderFactory resolves a Sender for a given sending profile. This allows
// the worker pool to remain ESP-agnostic.
type SenderFactory interface {
	SenderFor(ctx context.Context, profileID string) (Sender, error)
}

// SuppressionChecker performs a pre-send suppression check.
type SuppressionChecker interface {
	IsSuppressed(email string) bool
}

// TrackingInjector modifies email HTML to add open pixels, click redirects,
// and unsubscribe links.
type TrackingInjector interface {
	InjectTracking(html, campaignID, subscriberID, emailID string) string
	GenerateUnsubscribeURL(campaignID, subscriberID string) string
	GenerateHeaders(campaignID, subscriberID string) map[string]string
}
