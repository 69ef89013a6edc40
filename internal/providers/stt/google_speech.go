package stt

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	// Model is the recognition model; phone_call suits narrowband audio.
	Model string
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c, Model: "phone_call"}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, float64, error) {
	if len(pcm) == 0 {
		return "", 0, nil
	}
	if language == "" {
		language = "en-US"
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			LanguageCode:               language,
			Model:                      g.Model,
			UseEnhanced:                true,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	})
	if err != nil {
		return "", 0, err
	}

	// Results are consecutive spans; join the best alternative of each.
	var text string
	var confSum float64
	var n int
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
			continue
		}
		alt := r.Alternatives[0]
		if text != "" {
			text += " "
		}
		text += alt.Transcript
		confSum += float64(alt.Confidence)
		n++
	}
	if n == 0 {
		return "", 0, nil
	}
	return text, confSum / float64(n), nil
}
