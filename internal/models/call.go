package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	CallStatusActive = "active"
	CallStatusEnded  = "ended"
)

// End reasons recorded on a call.
const (
	EndReasonHangup     = "hangup"
	EndReasonInactivity = "inactivity"
	EndReasonOperator   = "operator"
	EndReasonShutdown   = "shutdown"
)

type Call struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallID    string             `bson:"call_id" json:"call_id"` // telephony call sid
	StreamSID string             `bson:"stream_sid,omitempty" json:"stream_sid,omitempty"`
	Caller    string             `bson:"caller,omitempty" json:"caller,omitempty"`

	Status    string       `bson:"status" json:"status"` // active|ended
	EndReason string       `bson:"end_reason,omitempty" json:"end_reason,omitempty"`
	Metadata  CallMetadata `bson:"metadata" json:"metadata"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}

// CallMetadata is the final routing state of a call.
type CallMetadata struct {
	CustomerID     string `bson:"customer_id,omitempty" json:"customer_id,omitempty"`
	Classification string `bson:"classification,omitempty" json:"classification,omitempty"`
	RequiredAuth   string `bson:"required_auth,omitempty" json:"required_auth,omitempty"`
	CurrentAuth    string `bson:"current_auth,omitempty" json:"current_auth,omitempty"`
	Utterances     int64  `bson:"utterances" json:"utterances"`
	DroppedChunks  int64  `bson:"dropped_chunks" json:"dropped_chunks"`
}
