package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yoockh/callgate/internal/audio"
)

// Whisper transcribes through the OpenAI audio transcription endpoint.
type Whisper struct {
	client openai.Client
	model  string
}

func NewWhisper(apiKey, baseURL, model string) *Whisper {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	return &Whisper{client: openai.NewClient(opts...), model: model}
}

func (w *Whisper) Close() error { return nil }

func (w *Whisper) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, float64, error) {
	if len(pcm) == 0 {
		return "", 0, nil
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio.EncodeWAV(pcm, sampleRate)), "utterance.wav", "audio/wav"),
		Model: w.model,
	}
	if lang := whisperLanguage(language); lang != "" {
		params.Language = openai.String(lang)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", 0, fmt.Errorf("openai transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", 0, nil
	}
	return text, 1, nil
}

// whisperLanguage maps a BCP-47 tag like "en-US" to the ISO-639-1 code the
// transcription API accepts.
func whisperLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
