package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

const (
	SpeakerCaller = "caller"
	SpeakerAgent  = "agent"
)

type TranscriptEntry struct {
	ID         string           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CallID     string           `gorm:"column:call_id;type:text;index" json:"call_id"`
	CustomerID *string          `gorm:"column:customer_id;type:uuid;index" json:"customer_id,omitempty"`
	Seq        int64            `gorm:"column:seq;type:bigint" json:"seq"`
	Speaker    string           `gorm:"column:speaker;type:text" json:"speaker"` // "caller" | "agent"
	Content    string           `gorm:"column:content;type:text" json:"content"`
	Embedding  *pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"-"`
	Timestamp  time.Time        `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
	Metadata   datatypes.JSON   `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (TranscriptEntry) TableName() string { return "transcript_entries" }
