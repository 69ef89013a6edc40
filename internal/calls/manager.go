package calls

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/metrics"
	"github.com/yoockh/callgate/internal/models"
)

type Config struct {
	Segmenter audio.SegmenterConfig

	InactivityTimeout  time.Duration
	EndedCallRetention time.Duration
	ReapInterval       time.Duration

	// Language is the transcription language tag, e.g. "en-US".
	Language string
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 30 * time.Second
	}
	if c.EndedCallRetention <= 0 {
		c.EndedCallRetention = 10 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Second
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	return c
}

type Deps struct {
	Dialogue    Dialogue
	Transcriber Transcriber
	Synthesizer Synthesizer

	// Optional.
	Recorder  Recorder
	Lifecycle Lifecycle
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
}

// Manager owns every live call session.
type Manager struct {
	cfg      Config
	registry *Registry

	dialogue  Dialogue
	stt       Transcriber
	tts       Synthesizer
	recorder  Recorder
	lifecycle Lifecycle
	metrics   *metrics.Metrics
	log       logrus.FieldLogger

	wg sync.WaitGroup
}

func NewManager(cfg Config, deps Deps) *Manager {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Manager{
		cfg:       cfg,
		registry:  NewRegistry(cfg.EndedCallRetention),
		dialogue:  deps.Dialogue,
		stt:       deps.Transcriber,
		tts:       deps.Synthesizer,
		recorder:  deps.Recorder,
		lifecycle: deps.Lifecycle,
		metrics:   deps.Metrics,
		log:       deps.Logger,
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

// Start attaches a media stream to a call, creating the session if audio has
// not already done so. It fails with ErrCallEnded for calls torn down
// within the retention window.
func (m *Manager) Start(info CallInfo, out Output) (*Session, error) {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	s, created, err := m.registry.GetOrCreate(info.CallID, func() *Session {
		return newSession(m, info)
	})
	if err != nil {
		return nil, err
	}
	s.attach(out, info.StreamSID, info.Caller)
	if created {
		m.started(s)
	}
	return s, nil
}

// Ingest routes a chunk to its call. Chunks for an ended call are dropped and
// reported as ErrCallEnded; a chunk for a call never seen starts its session.
func (m *Manager) Ingest(callID string, c audio.Chunk) error {
	s, created, err := m.registry.GetOrCreate(callID, func() *Session {
		return newSession(m, CallInfo{CallID: callID, StartedAt: time.Now().UTC()})
	})
	if err != nil {
		m.metrics.RecordDroppedChunk()
		m.log.WithField("call_id", callID).Warn("dropping chunk for ended call")
		return err
	}
	if created {
		m.started(s)
	}
	s.Ingest(c)
	return nil
}

func (m *Manager) started(s *Session) {
	m.metrics.RecordCallStart()
	info := s.Info()
	m.log.WithFields(logrus.Fields{
		"call_id": info.CallID,
		"caller":  info.Caller,
	}).Info("call started")

	if m.lifecycle == nil {
		close(s.startHook)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(s.startHook)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.lifecycle.CallStarted(ctx, info); err != nil {
			m.log.WithError(err).WithField("call_id", info.CallID).Warn("call start hook failed")
		}
	}()
}

func (m *Manager) Get(callID string) (*Session, error) {
	return m.registry.Get(callID)
}

// End tears a call down. Ending a call that already ended is a no-op.
func (m *Manager) End(callID, reason string) error {
	s, ok := m.registry.Remove(callID, reason)
	if !ok {
		if _, ended := m.registry.EndReason(callID); ended {
			return nil
		}
		return ErrUnknownCall
	}

	s.stop()
	m.metrics.RecordCallEnd(reason)

	info := s.Info()
	summary := CallSummary{
		CallInfo:   info,
		Reason:     reason,
		EndedAt:    time.Now().UTC(),
		Auth:       s.Auth(),
		Utterances: s.Utterances(),
		Dropped:    s.Dropped(),
	}
	m.log.WithFields(logrus.Fields{
		"call_id":    callID,
		"reason":     reason,
		"utterances": summary.Utterances,
		"auth":       summary.Auth.Current.String(),
	}).Info("call ended")

	if m.lifecycle != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case <-s.startHook:
		case <-ctx.Done():
		}
		if err := m.lifecycle.CallEnded(ctx, summary); err != nil {
			m.log.WithError(err).WithField("call_id", callID).Warn("call end hook failed")
		}
	}
	return nil
}

// Run reaps inactive calls until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	t := time.NewTicker(m.cfg.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.reap(now)
		}
	}
}

func (m *Manager) reap(now time.Time) {
	for _, s := range m.registry.Idle(now.Add(-m.cfg.InactivityTimeout)) {
		m.log.WithField("call_id", s.CallID()).Info("closing inactive call")
		if err := m.End(s.CallID(), models.EndReasonInactivity); err != nil && !errors.Is(err, ErrUnknownCall) {
			m.log.WithError(err).Warn("failed to close inactive call")
		}
	}
}

// Shutdown ends every live call and waits for pending hooks.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, s := range m.registry.List() {
		_ = m.End(s.CallID(), models.EndReasonShutdown)
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
