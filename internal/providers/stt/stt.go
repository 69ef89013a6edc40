package stt

import "context"

// Provider transcribes mono PCM16 audio. Silence or unintelligible input
// returns an empty transcript, not an error.
type Provider interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (text string, confidence float64, err error)
	Close() error
}
