package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types published on a call's event channel.
const (
	EventCallStarted        = "call_started"
	EventUtterance          = "utterance"
	EventUtterancePersisted = "utterance_persisted"
	EventCallEnded          = "call_ended"
)

// EventsChannel is the pub/sub channel carrying live events for one call.
func EventsChannel(callID string) string { return "call:" + callID + ":events" }

type Event struct {
	Type      string         `json:"type"`
	CallID    string         `json:"call_id"`
	Seq       int64          `json:"seq,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type EventPublisher struct {
	Redis redis.UniversalClient
}

func (p *EventPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.Redis == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Redis.Publish(ctx, EventsChannel(ev.CallID), b).Err()
}
