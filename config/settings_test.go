package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/dialogue"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"SILENCE_THRESHOLD", "SILENCE_DURATION", "MAX_BUFFER_DURATION", "SILENCE_CHECK_INTERVAL",
		"SPEECH_GUARD_RATIO", "INTERNAL_SAMPLE_RATE", "INACTIVITY_TIMEOUT", "MAX_RESPONDER_HOPS",
		"FALLBACK_REPLY", "LLM_PROVIDER", "AUDIT_STREAM", "CUSTOMER_CACHE",
	} {
		t.Setenv(k, "")
	}

	s := Load()
	assert.Equal(t, audio.DefaultSegmenterConfig(), s.Segmenter)
	assert.Equal(t, dialogue.DefaultMaxHops, s.Dialogue.MaxHops)
	assert.Equal(t, dialogue.DefaultFallbackReply, s.Dialogue.FallbackReply)
	assert.Equal(t, "openai", s.AI.LLMProvider)
	assert.Equal(t, 30*time.Second, s.Calls.InactivityTimeout)
	assert.Equal(t, "calls:audit", s.Audit.Stream)
	assert.Equal(t, "redis", s.Stores.CustomerCache)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SILENCE_THRESHOLD", "0.02")
	t.Setenv("SILENCE_DURATION", "1.5s")
	t.Setenv("MAX_BUFFER_DURATION", "20")
	t.Setenv("INACTIVITY_TIMEOUT", "nonsense")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_URI", "")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("LLM_PROVIDER", "Vertex")
	t.Setenv("EMBEDDINGS_ENABLED", "true")

	s := Load()
	assert.InDelta(t, 0.02, s.Segmenter.SilenceThreshold, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, s.Segmenter.SilenceDuration)
	assert.Equal(t, 20*time.Second, s.Segmenter.MaxBufferDuration)
	assert.Equal(t, 30*time.Second, s.Calls.InactivityTimeout)
	assert.Equal(t, "redis://cache:6379/0", s.Stores.RedisAddr)
	assert.Equal(t, "vertex", s.AI.LLMProvider)
	assert.True(t, s.AI.EmbeddingsEnabled)
}

func TestValidate(t *testing.T) {
	s := &Settings{
		App:       AppSettings{PublicHost: "calls.example.com"},
		Stores:    StoreSettings{MongoURI: "mongodb://m", PostgresURI: "postgres://p", RedisAddr: "r:6379", CustomerCache: "redis"},
		Segmenter: audio.DefaultSegmenterConfig(),
		AI:        AISettings{LLMProvider: "openai", STTProvider: "google", OpenAIKey: "sk"},
	}
	require.NoError(t, s.Validate())

	s.AI.LLMProvider = "vertex"
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GCP_PROJECT")

	s.AI.LLMProvider = "openai"
	s.Stores.CustomerCache = "disk"
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUSTOMER_CACHE")

	s.Stores.CustomerCache = "memory"
	s.App.PublicHost = ""
	s.Segmenter.SpeechGuardRatio = 2
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUBLIC_HOST")
	assert.Contains(t, err.Error(), "SPEECH_GUARD_RATIO")
}
