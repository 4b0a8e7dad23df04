// Package feedbackqueue decodes the feedback_events wire schema off a
// Redis list and hands each event to internal/feedback's Worker, popping
// events in a blocking BRPop loop.
package feedbackqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/gatewayd/internal/feedback"
	"github.com/ignite/gatewayd/internal/pkg/logger"
)

// Key is the Redis list feedback events are pushed onto.
const Key = "feedback_events"

// wireEvent mirrors the feedback_events wire schema:
// {provider, event:{type, message_id, timestamp, metadata}, raw_payload, received_at}.
type wireEvent struct {
	Provider   string    `json:"provider"`
	Event      wireInner `json:"event"`
	RawPayload string    `json:"raw_payload"`
	ReceivedAt time.Time `json:"received_at"`
}

type wireInner struct {
	Type      string                 `json:"type"`
	MessageID string                 `json:"message_id"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func decode(raw string) (feedback.ProviderEvent, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return feedback.ProviderEvent{}, fmt.Errorf("decode feedback event: %w", err)
	}

	ev := feedback.ProviderEvent{
		Provider:   w.Provider,
		Type:       feedback.EventType(w.Event.Type),
		MessageID:  w.Event.MessageID,
		Timestamp:  w.Event.Timestamp,
		RawPayload: w.RawPayload,
		ReceivedAt: w.ReceivedAt,
	}
	if v, ok := w.Event.Metadata["tracking_id"].(string); ok {
		ev.TrackingID = v
	}
	if v, ok := w.Event.Metadata["clicked_url"].(string); ok {
		ev.ClickedURL = v
	}
	if v, ok := w.Event.Metadata["user_agent"].(string); ok {
		ev.UserAgent = v
	}
	if v, ok := w.Event.Metadata["ip_address"].(string); ok {
		ev.IPAddress = v
	}
	if v, ok := w.Event.Metadata["content_type"].(string); ok {
		ev.ContentType = v
	}
	return ev, nil
}

// Consumer pops feedback_events off Redis and dispatches them to a
// feedback.Worker.
type Consumer struct {
	client *redis.Client
	worker *feedback.Worker
}

func New(client *redis.Client, worker *feedback.Worker) *Consumer {
	return &Consumer{client: client, worker: worker}
}

// Run blocks, BRPop-ing events until ctx is cancelled. A malformed event or
// a processing failure is logged and skipped; it never blocks the queue.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := c.client.BRPop(ctx, 5*time.Second, Key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			logger.Error("feedback queue pop failed", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		ev, err := decode(result[1])
		if err != nil {
			logger.Error("feedback event decode failed", "error", err.Error())
			continue
		}
		if err := c.worker.Process(ctx, ev); err != nil {
			logger.Error("feedback event processing failed",
				"provider", ev.Provider, "message_id", ev.MessageID, "error", err.Error())
		}
	}
}
