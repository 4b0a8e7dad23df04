// Package feedback implements the feedback ingest worker: route
// provider-normalised delivery events through the DSN/ARF parsers, mutate
// EmailLog/EmailEvent/Suppression/EmailTracking, and fan out customer
// webhooks.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/gatewayd/internal/arf"
	"github.com/ignite/gatewayd/internal/domain"
	"github.com/ignite/gatewayd/internal/dsn"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

// EventType enumerates the provider-normalised event types of the
// feedback_events queue schema.
type EventType string

const (
	EventDelivery  EventType = "delivery"
	EventBounce    EventType = "bounce"
	EventComplaint EventType = "complaint"
	EventOpen      EventType = "open"
	EventClick     EventType = "click"
	EventUnknown   EventType = "unknown"
)

// ProviderEvent is the normalised shape a provider's webhook callback is
// translated into before it reaches the worker.
type ProviderEvent struct {
	Provider     string
	Type         EventType
	MessageID    string
	Timestamp    time.Time
	TrackingID   string
	ClickedURL   string
	UserAgent    string
	IPAddress    string
	ContentType  string // Content-Type of RawPayload, for DSN/ARF multipart extraction
	RawPayload   string
	ReceivedAt   time.Time
}

// Worker dispatches ingested provider events.
type Worker struct {
	logs        domain.EmailLogStore
	suppression domain.SuppressionStore
	tracking    domain.EmailTrackingStore
	webhooks    domain.WebhookStore
	emitTrackingEvents bool
}

// Config bundles Worker's collaborators.
type Config struct {
	Logs        domain.EmailLogStore
	Suppression domain.SuppressionStore
	Tracking    domain.EmailTrackingStore
	Webhooks    domain.WebhookStore
	// EmitTrackingEvents controls whether open/click also append an
	// EmailEvent row.
	EmitTrackingEvents bool
}

func New(cfg Config) *Worker {
	return &Worker{
		logs:               cfg.Logs,
		suppression:        cfg.Suppression,
		tracking:           cfg.Tracking,
		webhooks:           cfg.Webhooks,
		emitTrackingEvents: cfg.EmitTrackingEvents,
	}
}

// Process runs the dispatch algorithm for one ProviderEvent. A nil error
// means the caller should ack the queue message; ProviderEvent processing
// never retries (parse failures are recorded, not requeued).
func (w *Worker) Process(ctx context.Context, ev ProviderEvent) error {
	log, err := w.logs.GetByProviderMessageID(ctx, ev.MessageID)
	if err != nil {
		return fmt.Errorf("lookup email log: %w", err)
	}
	if log == nil {
		// Pre-tracking message: the event arrived before our own send
		// recorded a provider_message_id. Ack and skip.
		return nil
	}

	switch ev.Type {
	case EventDelivery:
		return w.handleDelivery(ctx, log, ev)
	case EventBounce:
		return w.handleBounce(ctx, log, ev)
	case EventComplaint:
		return w.handleComplaint(ctx, log, ev)
	case EventOpen:
		return w.handleOpen(ctx, log, ev)
	case EventClick:
		return w.handleClick(ctx, log, ev)
	default:
		logger.Debug("feedback event unknown type", "provider", ev.Provider, "message_id", ev.MessageID)
		return nil
	}
}

func (w *Worker) handleDelivery(ctx context.Context, log *domain.EmailLog, ev ProviderEvent) error {
	ts := ev.Timestamp
	log.DeliveryTimestamp = &ts
	if err := w.logs.Upsert(ctx, log); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if err := w.appendEvent(ctx, log, domain.EventDelivered, nil); err != nil {
		return err
	}
	return w.fanOut(ctx, log, domain.WebhookEventDelivered, log.ID, map[string]interface{}{
		"delivered_at": ts,
	})
}

func (w *Worker) handleBounce(ctx context.Context, log *domain.EmailLog, ev ProviderEvent) error {
	report, err := dsn.Parse(ev.ContentType, ev.RawPayload)
	if err != nil {
		// DSN parse failure mode: record as unknown, do not suppress.
		logger.Warn("dsn parse failed", "message_id", ev.MessageID, "error", err.Error())
		log.BounceType = "unknown"
		log.ErrorCode = "bounce_unknown"
		log.ErrorReason = "could not parse delivery status notification"
		if err := w.logs.Upsert(ctx, log); err != nil {
			return fmt.Errorf("record unparsed bounce: %w", err)
		}
		if err := w.appendEvent(ctx, log, domain.EventBounced, map[string]interface{}{"parse_failed": true}); err != nil {
			return err
		}
		return w.fanOut(ctx, log, domain.WebhookEventBounced, log.ID, map[string]interface{}{
			"bounce_type": "unknown",
		})
	}

	class := report.BounceClass()
	var subreason, diagnostic string
	for _, rcpt := range report.PerRecipient {
		if matchesRecipient(rcpt, log.To) {
			subreason = rcpt.BounceSubreason
			diagnostic = rcpt.DiagnosticCode
			break
		}
	}
	if subreason == "" && len(report.PerRecipient) > 0 {
		subreason = report.PerRecipient[0].BounceSubreason
		diagnostic = report.PerRecipient[0].DiagnosticCode
	}

	log.BounceType = string(class)
	log.BounceSubtype = subreason
	log.ErrorCode = "bounced"
	log.ErrorReason = diagnostic
	if err := w.logs.Upsert(ctx, log); err != nil {
		return fmt.Errorf("record bounce: %w", err)
	}
	if err := w.appendEvent(ctx, log, domain.EventBounced, map[string]interface{}{
		"bounce_type": class, "bounce_subtype": subreason, "diagnostic_code": diagnostic,
	}); err != nil {
		return err
	}

	if class == dsn.BounceHard {
		if err := w.suppression.Upsert(ctx, &domain.Suppression{
			TenantID:       log.TenantID,
			Email:          log.To,
			Domain:         emailDomain(log.To),
			Reason:         domain.ReasonHardBounce,
			BounceType:     string(class),
			DiagnosticCode: diagnostic,
			SuppressedAt:   time.Now(),
		}); err != nil {
			return fmt.Errorf("suppress hard bounce: %w", err)
		}
	}

	return w.fanOut(ctx, log, domain.WebhookEventBounced, log.ID, map[string]interface{}{
		"bounce_type":     class,
		"bounce_subtype":  subreason,
		"diagnostic_code": diagnostic,
	})
}

func (w *Worker) handleComplaint(ctx context.Context, log *domain.EmailLog, ev ProviderEvent) error {
	report, err := arf.Parse(ev.ContentType, ev.RawPayload)
	feedbackType := "unknown"
	if err != nil {
		logger.Warn("arf parse failed", "message_id", ev.MessageID, "error", err.Error())
		log.ErrorCode = "complaint_unknown"
		if err := w.logs.Upsert(ctx, log); err != nil {
			return fmt.Errorf("record unparsed complaint: %w", err)
		}
		if err := w.appendEvent(ctx, log, domain.EventComplained, map[string]interface{}{"parse_failed": true}); err != nil {
			return err
		}
	} else {
		feedbackType = string(report.FeedbackType)
		log.ComplaintFeedbackType = feedbackType
		log.ErrorCode = "complaint"
		if err := w.logs.Upsert(ctx, log); err != nil {
			return fmt.Errorf("record complaint: %w", err)
		}
		if err := w.appendEvent(ctx, log, domain.EventComplained, map[string]interface{}{"feedback_type": report.FeedbackType}); err != nil {
			return err
		}
	}

	// Complaints are always suppressed immediately, regardless of parse
	// success.
	if err := w.suppression.Upsert(ctx, &domain.Suppression{
		TenantID:     log.TenantID,
		Email:        log.To,
		Domain:       emailDomain(log.To),
		Reason:       domain.ReasonSpamComplaint,
		SuppressedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("suppress complaint: %w", err)
	}

	return w.fanOut(ctx, log, domain.WebhookEventComplained, log.ID, map[string]interface{}{
		"feedback_type": feedbackType,
	})
}

func (w *Worker) handleOpen(ctx context.Context, log *domain.EmailLog, ev ProviderEvent) error {
	trackingID := ev.TrackingID
	if trackingID == "" {
		trackingID = log.ID
	}
	if err := w.tracking.RecordOpen(ctx, log.ID, trackingID, ev.UserAgent, ev.IPAddress); err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	if w.emitTrackingEvents {
		if err := w.appendEvent(ctx, log, domain.EventOpened, map[string]interface{}{"tracking_id": trackingID}); err != nil {
			return err
		}
	}
	return w.fanOut(ctx, log, domain.WebhookEventOpened, log.ID, map[string]interface{}{
		"tracking_id": trackingID,
	})
}

func (w *Worker) handleClick(ctx context.Context, log *domain.EmailLog, ev ProviderEvent) error {
	trackingID := ev.TrackingID
	if trackingID == "" {
		trackingID = log.ID
	}
	if err := w.tracking.RecordClick(ctx, log.ID, trackingID, ev.ClickedURL, ev.UserAgent, ev.IPAddress); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	if w.emitTrackingEvents {
		if err := w.appendEvent(ctx, log, domain.EventClicked, map[string]interface{}{"tracking_id": trackingID, "url": ev.ClickedURL}); err != nil {
			return err
		}
	}
	return w.fanOut(ctx, log, domain.WebhookEventClicked, log.ID, map[string]interface{}{
		"tracking_id": trackingID,
		"url":         ev.ClickedURL,
	})
}

func (w *Worker) appendEvent(ctx context.Context, log *domain.EmailLog, t domain.EmailEventType, metadata map[string]interface{}) error {
	ev := &domain.EmailEvent{
		ID:         uuid.NewString(),
		EmailLogID: log.ID,
		Type:       t,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	if err := w.logs.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append %s event: %w", t, err)
	}
	return nil
}

// fanOut enqueues a WebhookDelivery for every active tenant webhook
// subscribed to evType. The payload matches the customer webhook wire
// format: {email, ...event-specific fields}. It is built once here rather
// than at delivery time so that a later EmailLog mutation can never change
// what a customer's webhook reports for this event.
func (w *Worker) fanOut(ctx context.Context, log *domain.EmailLog, evType domain.WebhookEventType, emailEventID string, fields map[string]interface{}) error {
	if w.webhooks == nil {
		return nil
	}
	hooks, err := w.webhooks.ListActiveForTenant(ctx, log.TenantID, evType)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}

	body := map[string]interface{}{
		"email":          log.To,
		"message_id":     log.ProviderMessageID,
		"email_log_id":   log.ID,
		"event":          evType,
	}
	for k, v := range fields {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	for _, h := range hooks {
		d := &domain.WebhookDelivery{
			ID:           uuid.NewString(),
			WebhookID:    h.ID,
			EmailEventID: emailEventID,
			EventType:    evType,
			Payload:      payload,
			Status:       domain.WebhookDeliveryPending,
			CreatedAt:    time.Now(),
		}
		if err := w.webhooks.EnqueueDelivery(ctx, d); err != nil {
			return fmt.Errorf("enqueue webhook delivery: %w", err)
		}
	}
	return nil
}

func matchesRecipient(rcpt dsn.RecipientStatus, to string) bool {
	return strings.EqualFold(rcpt.FinalRecipient, to) || strings.EqualFold(rcpt.OriginalRecipient, to)
}

func emailDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(email[idx+1:])
}
