package audio

import (
	"time"

	"github.com/sirupsen/logrus"
)

type SegmenterConfig struct {
	SampleRate        int
	SilenceThreshold  float64
	SilenceDuration   time.Duration
	MaxBufferDuration time.Duration
	CheckInterval     time.Duration

	// SpeechGuardRatio is the leading fraction of the buffer that must carry
	// energy above the threshold for a flush to emit.
	SpeechGuardRatio float64
}

func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:        16000,
		SilenceThreshold:  0.01,
		SilenceDuration:   time.Second,
		MaxBufferDuration: 30 * time.Second,
		CheckInterval:     100 * time.Millisecond,
		SpeechGuardRatio:  0.8,
	}
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	def := DefaultSegmenterConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = def.SilenceDuration
	}
	if c.MaxBufferDuration <= 0 {
		c.MaxBufferDuration = def.MaxBufferDuration
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.SpeechGuardRatio <= 0 || c.SpeechGuardRatio > 1 {
		c.SpeechGuardRatio = def.SpeechGuardRatio
	}
	return c
}

func (c SegmenterConfig) samples(d time.Duration) int64 {
	return int64(d) * int64(c.SampleRate) / int64(time.Second)
}

// Segmenter turns one call's chunk stream into utterances using energy based
// silence detection. Time is measured in samples ingested, so delivery jitter
// does not change where an utterance ends. A Segmenter is owned by a single
// call and is not safe for concurrent use.
type Segmenter struct {
	cfg     SegmenterConfig
	log     logrus.FieldLogger
	decoder *Decoder
	buf     *ring

	checkSamples   int
	silenceSamples int64

	sinceCheck   int
	silenceStart int64 // absolute sample position, -1 when unset

	seq       int64
	dropped   int64
	discarded int64
}

func NewSegmenter(cfg SegmenterConfig, log logrus.FieldLogger) *Segmenter {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	check := int(cfg.samples(cfg.CheckInterval))
	if check < 1 {
		check = 1
	}
	return &Segmenter{
		cfg:            cfg,
		log:            log,
		decoder:        NewDecoder(cfg.SampleRate),
		buf:            newRing(int(cfg.samples(cfg.MaxBufferDuration))),
		checkSamples:   check,
		silenceSamples: cfg.samples(cfg.SilenceDuration),
		silenceStart:   -1,
	}
}

// Ingest appends a chunk and returns a completed utterance, if this chunk
// completed one. At most one utterance is returned per call; a trigger that
// falls after an emission within the same chunk fires on the next Ingest.
func (s *Segmenter) Ingest(c Chunk) *Utterance {
	samples, err := s.decoder.Decode(c)
	if err != nil {
		s.dropped++
		s.log.WithError(err).WithField("encoding", c.Encoding.String()).Warn("dropping audio chunk")
		return nil
	}

	var out *Utterance
	for len(samples) > 0 {
		n := s.checkSamples - s.sinceCheck
		if n > len(samples) {
			n = len(samples)
		}
		s.buf.Write(samples[:n])
		samples = samples[n:]
		s.sinceCheck += n

		if s.sinceCheck >= s.checkSamples {
			s.sinceCheck = 0
			if u := s.checkSilence(out == nil); u != nil {
				out = u
			}
		}
		// Once this call has emitted, a full buffer is not flushed again: the
		// ring keeps only the newest audio of an oversized chunk.
		if out == nil && s.buf.Full() {
			out = s.flush("max_duration")
		}
	}
	return out
}

func (s *Segmenter) checkSilence(canEmit bool) *Utterance {
	window := s.buf.Tail(s.checkSamples)
	if RMS(window) >= s.cfg.SilenceThreshold {
		s.silenceStart = -1
		return nil
	}
	if s.silenceStart < 0 {
		s.silenceStart = s.buf.Written() - int64(len(window))
		return nil
	}
	if !canEmit || s.buf.Written()-s.silenceStart < s.silenceSamples {
		return nil
	}
	return s.flush("silence")
}

func (s *Segmenter) flush(reason string) *Utterance {
	offset := s.buf.Start()
	buffered := s.buf.Snapshot()
	s.buf.Reset()
	s.silenceStart = -1
	s.sinceCheck = 0

	lead := buffered[:int(float64(len(buffered))*s.cfg.SpeechGuardRatio)]
	if len(lead) == 0 || RMS(lead) < s.cfg.SilenceThreshold {
		s.discarded++
		s.log.WithField("reason", reason).Debug("discarding silent buffer")
		return nil
	}

	s.seq++
	u := &Utterance{
		Seq:        s.seq,
		Samples:    buffered,
		SampleRate: s.cfg.SampleRate,
		Offset:     time.Duration(offset) * time.Second / time.Duration(s.cfg.SampleRate),
	}
	s.log.WithFields(logrus.Fields{
		"seq":         u.Seq,
		"reason":      reason,
		"duration_ms": u.Duration().Milliseconds(),
	}).Debug("utterance segmented")
	return u
}

// Buffered is the amount of audio waiting for a trigger.
func (s *Segmenter) Buffered() time.Duration {
	return time.Duration(s.buf.Len()) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Dropped counts malformed chunks.
func (s *Segmenter) Dropped() int64 { return s.dropped }

// Discarded counts flushes rejected as mostly silence.
func (s *Segmenter) Discarded() int64 { return s.discarded }

func (s *Segmenter) Config() SegmenterConfig { return s.cfg }
