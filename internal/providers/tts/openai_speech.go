package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/yoockh/callgate/internal/audio"
)

// openAIPCMRate is the fixed rate of the speech endpoint's raw pcm format.
const openAIPCMRate = 24000

type OpenAISpeech struct {
	client openai.Client
	model  string
	voice  string
}

func NewOpenAISpeech(apiKey, baseURL, model, voice string) *OpenAISpeech {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openai.SpeechModelGPT4oMiniTTS
	}
	if voice == "" {
		voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	return &OpenAISpeech{client: openai.NewClient(opts...), model: model, voice: voice}
}

func (s *OpenAISpeech) Close() error { return nil }

func (s *OpenAISpeech) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, nil
	}
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read speech body: %w", err)
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return audio.Clip{PCM: pcm, SampleRate: openAIPCMRate}, nil
}
