package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Utterance is the audit record of one pipeline pass.
type Utterance struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallID string             `bson:"call_id" json:"call_id"`
	Seq    int64              `bson:"seq" json:"seq"`

	AudioPath  string `bson:"audio_path,omitempty" json:"audio_path,omitempty"`
	ReplyPath  string `bson:"reply_path,omitempty" json:"reply_path,omitempty"`
	DurationMS int64  `bson:"duration_ms" json:"duration_ms"`

	Transcript    string  `bson:"transcript,omitempty" json:"transcript,omitempty"`
	STTStatus     string  `bson:"stt_status" json:"stt_status"` // done|empty|failed
	STTConfidence float64 `bson:"stt_confidence,omitempty" json:"stt_confidence,omitempty"`

	Reply      string   `bson:"reply,omitempty" json:"reply,omitempty"`
	Responders []string `bson:"responders,omitempty" json:"responders,omitempty"`
	Fallback   bool     `bson:"fallback" json:"fallback"`
	Delivery   string   `bson:"delivery,omitempty" json:"delivery,omitempty"` // played|interrupted|failed|none

	Classification string `bson:"classification,omitempty" json:"classification,omitempty"`
	AuthLevel      string `bson:"auth_level,omitempty" json:"auth_level,omitempty"`

	ProcessingTimeMS int64     `bson:"processing_time_ms,omitempty" json:"processing_time_ms,omitempty"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
