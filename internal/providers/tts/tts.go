package tts

import (
	"context"

	"github.com/yoockh/callgate/internal/audio"
)

// Provider turns reply text into mono PCM16 audio.
type Provider interface {
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
	Close() error
}
