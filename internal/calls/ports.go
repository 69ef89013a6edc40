package calls

import (
	"context"
	"time"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/dialogue"
)

// Transcriber turns an utterance into text. Unintelligible audio yields an
// empty transcript, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, float64, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}

// Output plays replies to the caller. Interrupt must be safe to call when
// nothing is playing.
type Output interface {
	Play(ctx context.Context, clip audio.Clip) error
	Interrupt() error
}

// Dialogue routes one transcript through the responder chain.
type Dialogue interface {
	Handle(ctx context.Context, st *dialogue.CallAuthState, in dialogue.Input) (dialogue.Outcome, error)
	FallbackReply() string
}

// Recorder receives the audit record of every processed utterance.
type Recorder interface {
	RecordUtterance(ctx context.Context, rec UtteranceRecord) error
}

// Lifecycle is told when calls start and end.
type Lifecycle interface {
	CallStarted(ctx context.Context, info CallInfo) error
	CallEnded(ctx context.Context, summary CallSummary) error
}

type CallInfo struct {
	CallID    string
	StreamSID string
	Caller    string
	StartedAt time.Time
}

type CallSummary struct {
	CallInfo
	Reason     string
	EndedAt    time.Time
	Auth       dialogue.Snapshot
	Utterances int64
	Dropped    int64
}

// STT outcomes.
const (
	STTDone   = "done"
	STTEmpty  = "empty"
	STTFailed = "failed"
)

// Delivery outcomes.
const (
	DeliveryPlayed      = "played"
	DeliveryInterrupted = "interrupted"
	DeliveryFailed      = "failed"
	DeliveryNone        = "none"
)

type UtteranceRecord struct {
	CallID   string
	Caller   string
	Seq      int64
	Offset   time.Duration
	Duration time.Duration

	// Audio is the caller's utterance as WAV; ReplyAudio is the synthesized
	// reply as WAV, when one was produced.
	Audio      []byte
	ReplyAudio []byte

	Transcript    string
	STTStatus     string
	STTConfidence float64

	Reply    string
	Hops     []string
	Fallback bool
	Delivery string

	Auth           dialogue.Snapshot
	ProcessingTime time.Duration
	Timestamp      time.Time
}
