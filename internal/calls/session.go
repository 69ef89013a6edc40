package calls

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/audio"
	"github.com/yoockh/callgate/internal/dialogue"
	"github.com/yoockh/callgate/internal/metrics"
)

// Session is one live call. Audio is ingested on the caller's goroutine and
// never blocks on the pipeline; utterances queue in segmentation order and a
// single worker runs them through transcribe, route, synthesize and play.
type Session struct {
	info CallInfo
	m    *Manager
	log  logrus.FieldLogger

	ingestMu  sync.Mutex
	segmenter *audio.Segmenter
	dropped   int64

	auth *dialogue.CallAuthState

	// worker-owned
	history []dialogue.Turn

	mu        sync.Mutex
	queue     []*audio.Utterance
	output    Output
	outCancel context.CancelFunc

	notify    chan struct{}
	startHook chan struct{} // closed once the start hook has run
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	lastActivity atomic.Int64
	utterances   atomic.Int64
}

func newSession(m *Manager, info CallInfo) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	log := m.log.WithField("call_id", info.CallID)
	s := &Session{
		info:      info,
		m:         m,
		log:       log,
		segmenter: audio.NewSegmenter(m.cfg.Segmenter, log),
		auth:      dialogue.NewCallAuthState(info.CallID),
		notify:    make(chan struct{}, 1),
		startHook: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.touch()
	go s.run()
	return s
}

func (s *Session) CallID() string { return s.info.CallID }

func (s *Session) Info() CallInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) Auth() dialogue.Snapshot { return s.auth.Snapshot() }

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// Done is closed once the session's worker has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// attach sets the reply output and fills in stream details learned after
// the session was created.
func (s *Session) attach(out Output, streamSID, caller string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out != nil {
		s.output = out
	}
	if streamSID != "" {
		s.info.StreamSID = streamSID
	}
	if caller != "" && s.info.Caller == "" {
		s.info.Caller = caller
	}
}

// Ingest feeds one chunk to the segmenter. A completed utterance interrupts
// any reply still being synthesized or played and is queued for the worker.
func (s *Session) Ingest(c audio.Chunk) {
	s.touch()

	s.ingestMu.Lock()
	u := s.segmenter.Ingest(c)
	dropped := s.segmenter.Dropped()
	newlyDropped := dropped - s.dropped
	s.dropped = dropped
	s.ingestMu.Unlock()

	for ; newlyDropped > 0; newlyDropped-- {
		s.m.metrics.RecordDroppedChunk()
	}
	if u == nil {
		return
	}

	s.bargeIn()

	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// bargeIn clears whatever the caller would still hear, then cancels the
// in-flight reply. Interrupt goes first so the output still knows a reply is
// in flight.
func (s *Session) bargeIn() {
	s.mu.Lock()
	cancel, out := s.outCancel, s.output
	s.outCancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	if out != nil {
		if err := out.Interrupt(); err != nil {
			s.log.WithError(err).Warn("failed to interrupt playback")
		}
	}
	cancel()
	s.log.Debug("barge-in: reply interrupted")
}

// Queued is the number of utterances waiting for the worker.
func (s *Session) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) Dropped() int64 {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	return s.segmenter.Dropped()
}

func (s *Session) Utterances() int64 { return s.utterances.Load() }

// stop ends the worker. Queued utterances are discarded and any in-flight
// stage sees a cancelled context.
func (s *Session) stop() {
	s.mu.Lock()
	out := s.output
	s.queue = nil
	s.mu.Unlock()

	if out != nil {
		_ = out.Interrupt()
	}
	s.cancel()
	<-s.done
}

func (s *Session) next() (*audio.Utterance, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			u := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return u, true
		}
		s.mu.Unlock()

		select {
		case <-s.ctx.Done():
			return nil, false
		case <-s.notify:
		}
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		u, ok := s.next()
		if !ok {
			return
		}
		s.process(u)
	}
}

func (s *Session) process(u *audio.Utterance) {
	start := time.Now()
	log := s.log.WithField("seq", u.Seq)
	info := s.Info()
	s.utterances.Add(1)

	rec := UtteranceRecord{
		CallID:    info.CallID,
		Caller:    info.Caller,
		Seq:       u.Seq,
		Offset:    u.Offset,
		Duration:  u.Duration(),
		Audio:     u.WAV(),
		Delivery:  DeliveryNone,
		Timestamp: start.UTC(),
	}

	text, conf, err := s.transcribe(u)
	switch {
	case err != nil && s.ctx.Err() != nil:
		return
	case err != nil:
		log.WithError(err).Error("transcription failed")
		rec.STTStatus = STTFailed
		rec.Reply = s.m.dialogue.FallbackReply()
		rec.Fallback = true
	case text == "":
		log.Warn("empty transcript, nothing to route")
		rec.STTStatus = STTEmpty
	default:
		rec.STTStatus = STTDone
		rec.Transcript = text
		rec.STTConfidence = conf

		t0 := time.Now()
		out, err := s.m.dialogue.Handle(s.ctx, s.auth, dialogue.Input{
			Transcript: text,
			Caller:     info.Caller,
			History:    append([]dialogue.Turn(nil), s.history...),
		})
		s.m.metrics.ObserveStage(metrics.StageRoute, time.Since(t0))
		if err != nil {
			log.WithError(err).Debug("routing abandoned")
			return
		}
		s.history = append(s.history, dialogue.Turn{Role: dialogue.RoleCaller, Text: text})
		rec.Reply = out.Reply
		rec.Fallback = out.Fallback
		for _, h := range out.Hops {
			rec.Hops = append(rec.Hops, h.String())
		}
	}

	if rec.Reply != "" {
		s.history = append(s.history, dialogue.Turn{Role: dialogue.RoleAgent, Text: rec.Reply})
		rec.Delivery, rec.ReplyAudio = s.deliver(log, rec.Reply)
	}

	rec.Auth = s.auth.Snapshot()
	rec.ProcessingTime = time.Since(start)
	s.m.metrics.RecordUtterance(outcomeOf(rec))

	log.WithFields(logrus.Fields{
		"stt_status":         rec.STTStatus,
		"responders":         rec.Hops,
		"fallback":           rec.Fallback,
		"delivery":           rec.Delivery,
		"processing_time_ms": rec.ProcessingTime.Milliseconds(),
	}).Info("utterance processed")

	if s.m.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.m.recorder.RecordUtterance(ctx, rec); err != nil {
			log.WithError(err).Warn("failed to record utterance")
		}
		cancel()
	}
}

func (s *Session) transcribe(u *audio.Utterance) (string, float64, error) {
	t0 := time.Now()
	defer func() { s.m.metrics.ObserveStage(metrics.StageTranscribe, time.Since(t0)) }()
	return s.m.stt.Transcribe(s.ctx, u.PCM16(), u.SampleRate, s.m.cfg.Language)
}

// deliver synthesizes and plays a reply under a context that a newer
// utterance cancels.
func (s *Session) deliver(log logrus.FieldLogger, reply string) (string, []byte) {
	s.mu.Lock()
	out := s.output
	ctx, cancel := context.WithCancel(s.ctx)
	s.outCancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.outCancel = nil
		s.mu.Unlock()
		cancel()
	}()

	if out == nil {
		log.Warn("no output attached, reply not played")
		return DeliveryFailed, nil
	}

	t0 := time.Now()
	clip, err := s.m.tts.Synthesize(ctx, reply)
	s.m.metrics.ObserveStage(metrics.StageSynthesize, time.Since(t0))
	if err != nil {
		if ctx.Err() != nil {
			return DeliveryInterrupted, nil
		}
		log.WithError(err).Error("speech synthesis failed")
		return DeliveryFailed, nil
	}

	t0 = time.Now()
	err = out.Play(ctx, clip)
	s.m.metrics.ObserveStage(metrics.StagePlay, time.Since(t0))
	switch {
	case err == nil:
		return DeliveryPlayed, clip.WAV()
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return DeliveryInterrupted, clip.WAV()
	default:
		log.WithError(err).Warn("playback failed")
		return DeliveryFailed, clip.WAV()
	}
}

func outcomeOf(rec UtteranceRecord) string {
	switch {
	case rec.STTStatus == STTEmpty:
		return metrics.OutcomeEmpty
	case rec.Delivery == DeliveryInterrupted:
		return metrics.OutcomeInterrupted
	case rec.Fallback:
		return metrics.OutcomeFallback
	case rec.Reply == "":
		return metrics.OutcomeSilent
	}
	return metrics.OutcomeReplied
}
