package workers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yoockh/callgate/internal/calls"
)

const DefaultAuditStream = "calls:audit"

// auditJob is the stream payload for one processed utterance.
type auditJob struct {
	CallID   string `json:"call_id"`
	Caller   string `json:"caller,omitempty"`
	Seq      int64  `json:"seq"`
	OffsetMS int64  `json:"offset_ms"`

	DurationMS int64  `json:"duration_ms"`
	Audio      []byte `json:"audio,omitempty"`
	ReplyAudio []byte `json:"reply_audio,omitempty"`

	Transcript    string  `json:"transcript,omitempty"`
	STTStatus     string  `json:"stt_status"`
	STTConfidence float64 `json:"stt_confidence,omitempty"`

	Reply    string   `json:"reply,omitempty"`
	Hops     []string `json:"hops,omitempty"`
	Fallback bool     `json:"fallback"`
	Delivery string   `json:"delivery"`

	Classification string `json:"classification,omitempty"`
	RequiredAuth   string `json:"required_auth"`
	AuthLevel      string `json:"auth_level"`

	ProcessingTimeMS int64     `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

func newAuditJob(rec calls.UtteranceRecord) auditJob {
	return auditJob{
		CallID:           rec.CallID,
		Caller:           rec.Caller,
		Seq:              rec.Seq,
		OffsetMS:         rec.Offset.Milliseconds(),
		DurationMS:       rec.Duration.Milliseconds(),
		Audio:            rec.Audio,
		ReplyAudio:       rec.ReplyAudio,
		Transcript:       rec.Transcript,
		STTStatus:        rec.STTStatus,
		STTConfidence:    rec.STTConfidence,
		Reply:            rec.Reply,
		Hops:             rec.Hops,
		Fallback:         rec.Fallback,
		Delivery:         rec.Delivery,
		Classification:   rec.Auth.Classification,
		RequiredAuth:     rec.Auth.Required.String(),
		AuthLevel:        rec.Auth.Current.String(),
		ProcessingTimeMS: rec.ProcessingTime.Milliseconds(),
		Timestamp:        rec.Timestamp,
	}
}

// StreamRecorder queues utterance audits on a Redis stream for the audit
// workers and publishes a live event for monitors.
type StreamRecorder struct {
	Redis  redis.UniversalClient
	Stream string
	MaxLen int64
	Events *EventPublisher
}

func (r *StreamRecorder) RecordUtterance(ctx context.Context, rec calls.UtteranceRecord) error {
	job := newAuditJob(rec)
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	stream := r.Stream
	if stream == "" {
		stream = DefaultAuditStream
	}
	maxLen := r.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	if err := r.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"call_id": rec.CallID,
			"seq":     strconv.FormatInt(rec.Seq, 10),
			"job":     payload,
		},
	}).Err(); err != nil {
		return err
	}

	return r.Events.Publish(ctx, Event{
		Type:   EventUtterance,
		CallID: rec.CallID,
		Seq:    rec.Seq,
		Data: map[string]any{
			"transcript":     job.Transcript,
			"reply":          job.Reply,
			"responders":     job.Hops,
			"fallback":       job.Fallback,
			"delivery":       job.Delivery,
			"classification": job.Classification,
			"auth_level":     job.AuthLevel,
		},
	})
}
