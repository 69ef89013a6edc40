package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yoockh/callgate/internal/audio"
)

// Media stream events.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
	EventDTMF      = "dtmf"
	EventClear     = "clear"
)

// CallerParameter carries the caller's number from the answer document into
// the stream's start message.
const CallerParameter = "caller"

// Inbound is one message Twilio sends over the media stream websocket.
type Inbound struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

func (s *StartPayload) Caller() string {
	if s == nil {
		return ""
	}
	return s.CustomParameters[CallerParameter]
}

type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// AudioEncoding maps the stream's declared format onto an audio encoding. Only
// mu-law is carried on bidirectional streams.
func (f MediaFormat) AudioEncoding() (audio.Encoding, error) {
	enc := audio.TwilioMulaw
	switch strings.ToLower(f.Encoding) {
	case "", "audio/x-mulaw":
	default:
		return audio.Encoding{}, fmt.Errorf("%w: stream encoding %q", audio.ErrMalformedChunk, f.Encoding)
	}
	if f.SampleRate > 0 {
		enc.SampleRate = f.SampleRate
	}
	if f.Channels > 0 {
		enc.Channels = f.Channels
	}
	return enc, nil
}

type MediaPayload struct {
	Track     string `json:"track"`
	Chunk     string `json:"chunk"`
	Timestamp string `json:"timestamp"`
	Payload   string `json:"payload"`
}

// AudioChunk decodes the base64 payload into a chunk of the given encoding.
func (m *MediaPayload) AudioChunk(enc audio.Encoding) (audio.Chunk, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return audio.Chunk{}, fmt.Errorf("%w: %v", audio.ErrMalformedChunk, err)
	}
	return audio.Chunk{Payload: raw, Encoding: enc}, nil
}

type MarkPayload struct {
	Name string `json:"name"`
}

type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

func ParseInbound(data []byte) (Inbound, error) {
	var m Inbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, err
	}
	if m.Event == "" {
		return Inbound{}, fmt.Errorf("stream message without event")
	}
	return m, nil
}

// Outbound is a message sent back to Twilio on the media stream.
type Outbound struct {
	Event     string         `json:"event"`
	StreamSid string         `json:"streamSid"`
	Media     *OutboundMedia `json:"media,omitempty"`
	Mark      *MarkPayload   `json:"mark,omitempty"`
}

type OutboundMedia struct {
	Payload string `json:"payload"`
}

func mediaMessage(streamSid string, mulaw []byte) Outbound {
	return Outbound{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &OutboundMedia{Payload: base64.StdEncoding.EncodeToString(mulaw)},
	}
}

func markMessage(streamSid, name string) Outbound {
	return Outbound{Event: EventMark, StreamSid: streamSid, Mark: &MarkPayload{Name: name}}
}

func clearMessage(streamSid string) Outbound {
	return Outbound{Event: EventClear, StreamSid: streamSid}
}
