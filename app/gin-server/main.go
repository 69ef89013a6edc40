package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/callgate/config"
	"github.com/yoockh/callgate/internal/api/handlers"
	"github.com/yoockh/callgate/internal/api/middleware"
	"github.com/yoockh/callgate/internal/api/routes"
	"github.com/yoockh/callgate/internal/cache"
	"github.com/yoockh/callgate/internal/calls"
	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/logger"
	"github.com/yoockh/callgate/internal/metrics"
	"github.com/yoockh/callgate/internal/providers/llm"
	"github.com/yoockh/callgate/internal/providers/stt"
	"github.com/yoockh/callgate/internal/providers/tts"
	mongorepo "github.com/yoockh/callgate/internal/repositories/mongo"
	pgrepo "github.com/yoockh/callgate/internal/repositories/postgres"
	"github.com/yoockh/callgate/internal/responders"
	"github.com/yoockh/callgate/internal/services"
	"github.com/yoockh/callgate/internal/storage"
	"github.com/yoockh/callgate/internal/workers"
)

func main() {
	settings := config.Load()
	log := logger.New(settings.App.LogLevel)

	if err := settings.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init MongoDB
	if err := config.InitMongo(settings.Stores.MongoURI, settings.Stores.MongoDB); err != nil {
		log.WithError(err).Fatal("MongoDB init error")
	}
	if err := config.EnsureMongoIndexes(config.MongoDB); err != nil {
		log.WithError(err).Fatal("MongoDB index error")
	}
	log.Info("MongoDB connected")

	// Init PostgreSQL
	if err := config.InitPostgres(settings.Stores.PostgresURI); err != nil {
		log.WithError(err).Fatal("PostgreSQL init error")
	}
	log.Info("PostgreSQL connected")

	// Init Redis
	if err := config.InitRedis(settings.Stores.RedisAddr); err != nil {
		log.WithError(err).Fatal("Redis init error")
	}
	log.Info("Redis connected")

	m := metrics.New("callgate")

	var store storage.Store
	if settings.Stores.RecordingsBucket != "" {
		gcs, err := storage.NewGCSUploader(ctx, settings.Stores.RecordingsBucket)
		if err != nil {
			log.WithError(err).Fatal("GCS init error")
		}
		defer gcs.Close()
		store = gcs
	} else {
		log.Warn("RECORDINGS_BUCKET is not set; recordings and greeting uploads are disabled")
	}

	// Services
	callSvc := services.NewCallService(mongorepo.NewCallRepo(config.MongoDB))
	uttSvc := services.NewUtteranceService(mongorepo.NewUtteranceRepo(config.MongoDB), settings.Stores.UtteranceTTL)
	var customerCache cache.Cache = cache.NewRedisCache(config.RedisClient)
	if settings.Stores.CustomerCache == "memory" {
		customerCache = cache.NewMemoryCache(settings.Stores.CustomerCacheTTL)
	}
	customerSvc := services.NewCustomerService(pgrepo.NewCustomerRepo(config.PostgresDB), customerCache, settings.Stores.CustomerCacheTTL)
	transcriptSvc := services.NewTranscriptService(pgrepo.NewTranscriptRepo(config.PostgresDB))
	recordingSvc := services.NewRecordingService(pgrepo.NewRecordingRepo(config.PostgresDB), store)

	// Capabilities
	chatLLM, classifierLLM, err := newLLMs(ctx, settings.AI)
	if err != nil {
		log.WithError(err).Fatal("LLM init error")
	}
	defer chatLLM.Close()

	transcriber, err := newTranscriber(ctx, settings.AI)
	if err != nil {
		log.WithError(err).Fatal("speech-to-text init error")
	}
	defer transcriber.Close()

	synth := tts.NewOpenAISpeech(settings.AI.OpenAIKey, settings.AI.OpenAIBaseURL, settings.AI.TTSModel, settings.AI.TTSVoice)

	var embedder llm.Embedder
	if settings.AI.EmbeddingsEnabled {
		embedder = llm.NewOpenAIEmbedder(settings.AI.OpenAIKey, settings.AI.OpenAIBaseURL, "")
	}

	// Dialogue
	table := dialogue.DefaultRiskTable()
	if settings.Dialogue.RiskTablePath != "" {
		table, err = dialogue.LoadRiskTable(settings.Dialogue.RiskTablePath)
		if err != nil {
			log.WithError(err).Fatal("risk table load error")
		}
	}

	router := responders.NewRouter(responders.RouterConfig{
		Classifier: responders.NewClassifier(classifierLLM),
		LowRisk:    responders.NewCardAuthenticator(chatLLM, customerSvc),
		HighRisk:   responders.NewAddressAuthenticator(chatLLM, customerSvc),
		Assistant:  responders.NewAssistant(chatLLM, customerSvc),
		Metrics:    m,
		Logger:     log,
	})
	orchestrator := dialogue.NewOrchestrator(router, dialogue.Options{
		Table:         table,
		MaxHops:       settings.Dialogue.MaxHops,
		FallbackReply: settings.Dialogue.FallbackReply,
		Logger:        log,
	})

	// Calls
	events := &workers.EventPublisher{Redis: config.RedisClient}
	manager := calls.NewManager(calls.Config{
		Segmenter:          settings.Segmenter,
		InactivityTimeout:  settings.Calls.InactivityTimeout,
		EndedCallRetention: settings.Calls.EndedCallRetention,
		Language:           settings.AI.STTLanguage,
	}, calls.Deps{
		Dialogue:    orchestrator,
		Transcriber: transcriber,
		Synthesizer: synth,
		Recorder: &workers.StreamRecorder{
			Redis:  config.RedisClient,
			Stream: settings.Audit.Stream,
			Events: events,
		},
		Lifecycle: &workers.CallLifecycle{
			Calls:     callSvc,
			Customers: customerSvc,
			Events:    events,
			Logger:    log,
		},
		Metrics: m,
		Logger:  log,
	})
	go manager.Run(ctx)

	// Audit workers
	pool := &workers.AuditWorkerPool{
		Redis:       config.RedisClient,
		NumWorkers:  settings.Audit.Workers,
		Calls:       callSvc,
		Utterances:  uttSvc,
		Transcripts: transcriptSvc,
		Recordings:  recordingSvc,
		Embedder:    embedder,
		Events:      events,
		Metrics:     m,
		Logger:      log,
		Stream:      settings.Audit.Stream,
	}
	if err := pool.Start(ctx); err != nil {
		log.WithError(err).Fatal("audit worker init error")
	}

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Twilio: handlers.NewTwilioHandler(handlers.TwilioConfig{
			PublicHost: settings.App.PublicHost,
			AuthToken:  settings.Twilio.AuthToken,
			Greeting:   settings.Twilio.Greeting,
		}, manager, recordingSvc, log),
		Calls:     handlers.NewCallsHandler(manager, callSvc, uttSvc, transcriptSvc, recordingSvc),
		Monitor:   handlers.NewMonitorHandler(config.RedisClient),
		Customers: handlers.NewCustomerHandler(customerSvc),
		Greeting:  handlers.NewGreetingHandler(recordingSvc),
		JWT: middleware.JWTConfig{
			Secret:   settings.Operator.JWTSecret,
			Issuer:   settings.Operator.JWTIssuer,
			Audience: settings.Operator.JWTAudience,
		},
		Metrics: m.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + settings.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", settings.App.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("call manager shutdown")
	}
	if err := config.MongoClient.Disconnect(shutdownCtx); err != nil {
		log.WithError(err).Warn("mongo disconnect")
	}
	_ = config.RedisClient.Close()
}

// newLLMs returns the responder model and the (possibly cheaper) classifier
// model.
func newLLMs(ctx context.Context, ai config.AISettings) (llm.Provider, llm.Provider, error) {
	switch ai.LLMProvider {
	case "vertex":
		p, err := llm.NewVertexGemini(ctx, ai.GCPProject, ai.GCPLocation, ai.VertexModel)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		chat := llm.NewOpenAI(ai.OpenAIKey, ai.OpenAIBaseURL, ai.OpenAIModel)
		if ai.OpenAIClassifierModel == "" {
			return chat, chat, nil
		}
		return chat, llm.NewOpenAI(ai.OpenAIKey, ai.OpenAIBaseURL, ai.OpenAIClassifierModel), nil
	}
}

func newTranscriber(ctx context.Context, ai config.AISettings) (stt.Provider, error) {
	if ai.STTProvider == "whisper" {
		return stt.NewWhisper(ai.OpenAIKey, ai.OpenAIBaseURL, ""), nil
	}
	return stt.NewGoogleSpeech(ctx)
}
