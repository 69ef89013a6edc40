package models

import "time"

const (
	RecordingCaller = "caller"
	RecordingReply  = "reply"
)

type CallRecording struct {
	ID       string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CallID   string `gorm:"column:call_id;type:text;index" json:"call_id"`
	Seq      int64  `gorm:"column:seq;type:bigint" json:"seq"`
	Kind     string `gorm:"column:kind;type:text" json:"kind"` // caller|reply
	FilePath string `gorm:"column:file_path;type:text" json:"file_path"`

	FileSize   int    `gorm:"column:file_size;type:integer" json:"file_size"`
	MimeType   string `gorm:"column:mime_type;type:text" json:"mime_type"`
	DurationMS int64  `gorm:"column:duration_ms;type:bigint" json:"duration_ms"`

	UploadAt time.Time `gorm:"column:upload_at;type:timestamptz" json:"upload_at"`
}

func (CallRecording) TableName() string { return "call_recordings" }
