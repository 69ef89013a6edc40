package audio

import (
	"errors"
	"fmt"
	"time"
)

// Format is the sample encoding of an inbound chunk.
type Format string

const (
	FormatMulaw   Format = "mulaw"   // G.711 mu-law, 8 bits per sample
	FormatPCM16   Format = "pcm16"   // signed 16-bit little-endian
	FormatFloat32 Format = "float32" // IEEE-754 little-endian
)

// ErrMalformedChunk is returned for payloads that cannot be decoded with their
// declared encoding.
var ErrMalformedChunk = errors.New("malformed audio chunk")

// Encoding tags a chunk payload with how to interpret it.
type Encoding struct {
	Format     Format `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// TwilioMulaw is the encoding of Twilio media stream payloads.
var TwilioMulaw = Encoding{Format: FormatMulaw, SampleRate: 8000, Channels: 1}

func (e Encoding) bytesPerSample() int {
	switch e.Format {
	case FormatMulaw:
		return 1
	case FormatPCM16:
		return 2
	case FormatFloat32:
		return 4
	}
	return 0
}

func (e Encoding) validate() error {
	if e.bytesPerSample() == 0 {
		return fmt.Errorf("%w: unknown format %q", ErrMalformedChunk, e.Format)
	}
	if e.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrMalformedChunk, e.SampleRate)
	}
	if e.Channels <= 0 {
		return fmt.Errorf("%w: channels %d", ErrMalformedChunk, e.Channels)
	}
	return nil
}

func (e Encoding) String() string {
	return fmt.Sprintf("%s; rate=%d; channels=%d", e.Format, e.SampleRate, e.Channels)
}

// Chunk is one unit of inbound call audio. It is never modified after receipt.
type Chunk struct {
	Payload  []byte
	Encoding Encoding
}

// Utterance is one contiguous span of caller speech, as mono float32 samples in
// [-1, 1] at SampleRate.
type Utterance struct {
	Seq        int64
	Samples    []float32
	SampleRate int

	// Offset is where the utterance starts on the call's audio timeline.
	Offset time.Duration
}

func (u *Utterance) Duration() time.Duration {
	if u == nil || u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// PCM16 returns the samples as signed 16-bit little-endian PCM.
func (u *Utterance) PCM16() []byte {
	return floatToPCM16(u.Samples)
}

// WAV returns the samples wrapped in a RIFF/WAVE container.
func (u *Utterance) WAV() []byte {
	return EncodeWAV(u.PCM16(), u.SampleRate)
}

// Clip is synthesized mono PCM16 audio ready for delivery.
type Clip struct {
	PCM        []byte
	SampleRate int
}

func (c Clip) Empty() bool { return len(c.PCM) < 2 }

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.PCM)/2) * time.Second / time.Duration(c.SampleRate)
}

func (c Clip) WAV() []byte {
	return EncodeWAV(c.PCM, c.SampleRate)
}
