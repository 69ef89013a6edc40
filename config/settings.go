package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/dialogue"
)

type Settings struct {
	App       AppSettings
	Stores    StoreSettings
	Segmenter audio.SegmenterConfig
	Calls     CallSettings
	Dialogue  DialogueSettings
	AI        AISettings
	Twilio    TwilioSettings
	Operator  OperatorSettings
	Audit     AuditSettings
}

type AppSettings struct {
	Port       string
	PublicHost string
	LogLevel   string
}

type StoreSettings struct {
	MongoURI         string
	MongoDB          string
	PostgresURI      string
	RedisAddr        string
	RecordingsBucket string
	UtteranceTTL     time.Duration
	CustomerCacheTTL time.Duration
	// CustomerCache selects the customer lookup cache: redis or memory.
	CustomerCache string
}

type CallSettings struct {
	InactivityTimeout  time.Duration
	EndedCallRetention time.Duration
}

type DialogueSettings struct {
	MaxHops       int
	FallbackReply string
	RiskTablePath string
}

type AISettings struct {
	LLMProvider string // openai|vertex
	STTProvider string // google|whisper
	STTLanguage string

	OpenAIKey             string
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAIClassifierModel string
	TTSModel              string
	TTSVoice              string

	GCPProject  string
	GCPLocation string
	VertexModel string

	EmbeddingsEnabled bool
}

type TwilioSettings struct {
	AuthToken string
	Greeting  string
}

type OperatorSettings struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type AuditSettings struct {
	Stream  string
	Workers int
}

// Load reads .env (when present) and the process environment.
func Load() *Settings {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, using process environment")
	}

	seg := audio.DefaultSegmenterConfig()

	return &Settings{
		App: AppSettings{
			Port:       getEnv("PORT", "8080"),
			PublicHost: getEnv("PUBLIC_HOST", ""),
			LogLevel:   getEnv("LOG_LEVEL", "info"),
		},
		Stores: StoreSettings{
			MongoURI:         getEnv("MONGO_URI", ""),
			MongoDB:          getEnv("MONGO_DB", "callgate"),
			PostgresURI:      getEnv("POSTGRES_URI", ""),
			RedisAddr:        firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
			RecordingsBucket: getEnv("RECORDINGS_BUCKET", ""),
			UtteranceTTL:     getEnvDuration("UTTERANCE_TTL", 30*24*time.Hour),
			CustomerCacheTTL: getEnvDuration("CUSTOMER_CACHE_TTL", 5*time.Minute),
			CustomerCache:    strings.ToLower(getEnv("CUSTOMER_CACHE", "redis")),
		},
		Segmenter: audio.SegmenterConfig{
			SampleRate:        getEnvInt("INTERNAL_SAMPLE_RATE", seg.SampleRate),
			SilenceThreshold:  getEnvFloat("SILENCE_THRESHOLD", seg.SilenceThreshold),
			SilenceDuration:   getEnvDuration("SILENCE_DURATION", seg.SilenceDuration),
			MaxBufferDuration: getEnvDuration("MAX_BUFFER_DURATION", seg.MaxBufferDuration),
			CheckInterval:     getEnvDuration("SILENCE_CHECK_INTERVAL", seg.CheckInterval),
			SpeechGuardRatio:  getEnvFloat("SPEECH_GUARD_RATIO", seg.SpeechGuardRatio),
		},
		Calls: CallSettings{
			InactivityTimeout:  getEnvDuration("INACTIVITY_TIMEOUT", 30*time.Second),
			EndedCallRetention: getEnvDuration("ENDED_CALL_RETENTION", 10*time.Minute),
		},
		Dialogue: DialogueSettings{
			MaxHops:       getEnvInt("MAX_RESPONDER_HOPS", dialogue.DefaultMaxHops),
			FallbackReply: getEnv("FALLBACK_REPLY", dialogue.DefaultFallbackReply),
			RiskTablePath: getEnv("RISK_TABLE_PATH", ""),
		},
		AI: AISettings{
			LLMProvider:           strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			STTProvider:           strings.ToLower(getEnv("STT_PROVIDER", "google")),
			STTLanguage:           getEnv("STT_LANGUAGE", "en-US"),
			OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o"),
			OpenAIClassifierModel: getEnv("OPENAI_CLASSIFIER_MODEL", ""),
			TTSModel:              getEnv("TTS_MODEL", ""),
			TTSVoice:              getEnv("TTS_VOICE", ""),
			GCPProject:            getEnv("GCP_PROJECT", ""),
			GCPLocation:           getEnv("GCP_LOCATION", "us-central1"),
			VertexModel:           getEnv("VERTEX_MODEL", "gemini-2.0-flash"),
			EmbeddingsEnabled:     getEnvBool("EMBEDDINGS_ENABLED", false),
		},
		Twilio: TwilioSettings{
			AuthToken: getEnv("TWILIO_AUTH_TOKEN", ""),
			Greeting:  getEnv("GREETING", ""),
		},
		Operator: OperatorSettings{
			JWTSecret:   getEnv("OPERATOR_JWT_SECRET", ""),
			JWTIssuer:   getEnv("OPERATOR_JWT_ISSUER", ""),
			JWTAudience: getEnv("OPERATOR_JWT_AUDIENCE", ""),
		},
		Audit: AuditSettings{
			Stream:  getEnv("AUDIT_STREAM", "calls:audit"),
			Workers: getEnvInt("AUDIT_WORKERS", 4),
		},
	}
}

// Validate reports settings the server cannot start without.
func (s *Settings) Validate() error {
	var errs []error
	if s.App.PublicHost == "" {
		errs = append(errs, errors.New("PUBLIC_HOST is not set"))
	}
	if s.Stores.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is not set"))
	}
	if s.Stores.PostgresURI == "" {
		errs = append(errs, errors.New("POSTGRES_URI is not set"))
	}
	if s.Stores.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) is not set"))
	}
	if c := s.Stores.CustomerCache; c != "redis" && c != "memory" {
		errs = append(errs, errors.New("CUSTOMER_CACHE must be redis or memory"))
	}
	switch s.AI.LLMProvider {
	case "openai":
	case "vertex":
		if s.AI.GCPProject == "" {
			errs = append(errs, errors.New("GCP_PROJECT is required for LLM_PROVIDER=vertex"))
		}
	default:
		errs = append(errs, errors.New("LLM_PROVIDER must be openai or vertex"))
	}
	switch s.AI.STTProvider {
	case "google", "whisper":
	default:
		errs = append(errs, errors.New("STT_PROVIDER must be google or whisper"))
	}
	if s.AI.OpenAIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is not set (speech synthesis)"))
	}
	if s.Segmenter.SilenceThreshold < 0 || s.Segmenter.SpeechGuardRatio < 0 || s.Segmenter.SpeechGuardRatio > 1 {
		errs = append(errs, errors.New("SILENCE_THRESHOLD must be >= 0 and SPEECH_GUARD_RATIO in [0,1]"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getEnv(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1.5s") or bare seconds ("30").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
