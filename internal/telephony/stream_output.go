package telephony

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callgate/internal/audio"
)

const (
	// StreamRate is the sample rate of outbound mu-law audio.
	StreamRate = 8000
	// frameBytes is 20 ms of 8 kHz mu-law.
	frameBytes = StreamRate / 50

	markGrace = 5 * time.Second
)

// ErrInterrupted is returned by Play when playback was cleared before the
// trailing mark came back. It wraps context.Canceled so callers treat a clear
// like a cancelled reply.
var ErrInterrupted = fmt.Errorf("playback interrupted: %w", context.Canceled)

// Sender writes one outbound message to the media stream. Implementations
// must be safe for concurrent use.
type Sender interface {
	Send(msg Outbound) error
}

// StreamOutput plays synthesized clips into a Twilio media stream.
type StreamOutput struct {
	send      Sender
	streamSid string
	log       logrus.FieldLogger

	playMu sync.Mutex // one clip at a time

	mu      sync.Mutex
	seq     int64
	pending map[string]chan bool // mark name -> true on echo, false on clear
	sending bool
	// unplayed is set once media goes out and stays set until Twilio echoes
	// the clip's mark or the buffer is cleared, so a Play abandoned by its
	// context can still be cleared.
	unplayed bool
	epoch    int64 // bumped by Interrupt
	closed   bool
}

func NewStreamOutput(send Sender, streamSid string, log logrus.FieldLogger) *StreamOutput {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StreamOutput{
		send:      send,
		streamSid: streamSid,
		log:       log.WithField("stream_sid", streamSid),
		pending:   make(map[string]chan bool),
	}
}

// Play streams the clip and blocks until Twilio reports it finished playing,
// the context is cancelled, or Interrupt clears it.
func (o *StreamOutput) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return nil
	}
	pcm, err := audio.ResamplePCM16(clip.PCM, clip.SampleRate, StreamRate)
	if err != nil {
		return err
	}
	ulaw := audio.EncodeMulaw(pcm)

	o.playMu.Lock()
	defer o.playMu.Unlock()

	epoch, ok := o.begin()
	if !ok {
		return ErrInterrupted
	}
	defer o.end()

	for off := 0; off < len(ulaw); off += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+frameBytes, len(ulaw))
		sent, err := o.sendCurrent(epoch, mediaMessage(o.streamSid, ulaw[off:end]))
		if err != nil {
			return fmt.Errorf("send media: %w", err)
		}
		if !sent {
			return ErrInterrupted
		}
	}

	name, done := o.newMark()
	sent, err := o.sendCurrent(epoch, markMessage(o.streamSid, name))
	if err != nil || !sent {
		o.dropMark(name)
		if err != nil {
			return fmt.Errorf("send mark: %w", err)
		}
		return ErrInterrupted
	}

	timer := time.NewTimer(clip.Duration() + markGrace)
	defer timer.Stop()
	select {
	case played := <-done:
		if !played {
			return ErrInterrupted
		}
		return nil
	case <-ctx.Done():
		o.dropMark(name)
		return ctx.Err()
	case <-timer.C:
		o.dropMark(name)
		o.setPlayed()
		o.log.WithField("mark", name).Warn("playback mark never echoed")
		return nil
	}
}

// Interrupt clears any audio Twilio has buffered for the caller, including
// audio from a Play that already returned on a cancelled context. It is a
// no-op when nothing is playing.
func (o *StreamOutput) Interrupt() error {
	o.mu.Lock()
	idle := !o.sending && !o.unplayed && len(o.pending) == 0
	if o.closed || idle {
		o.mu.Unlock()
		return nil
	}
	// Sends and clears share mu, so no frame of the cleared reply can follow
	// the clear.
	defer o.mu.Unlock()
	o.epoch++
	o.unplayed = false
	o.releaseLocked(false)
	return o.send.Send(clearMessage(o.streamSid))
}

// Acknowledge records a mark echoed back by Twilio.
func (o *StreamOutput) Acknowledge(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.pending[name]; ok {
		ch <- true
		delete(o.pending, name)
		o.unplayed = false
	}
}

// Close releases any waiting Play once the stream has stopped.
func (o *StreamOutput) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.releaseLocked(false)
}

func (o *StreamOutput) begin() (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0, false
	}
	o.sending = true
	return o.epoch, true
}

// sendCurrent sends msg unless Interrupt or Close has run since epoch began.
func (o *StreamOutput) sendCurrent(epoch int64, msg Outbound) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.epoch != epoch {
		return false, nil
	}
	if err := o.send.Send(msg); err != nil {
		return false, err
	}
	if msg.Event == EventMedia {
		o.unplayed = true
	}
	return true, nil
}

func (o *StreamOutput) end() {
	o.mu.Lock()
	o.sending = false
	o.mu.Unlock()
}

func (o *StreamOutput) setPlayed() {
	o.mu.Lock()
	o.unplayed = false
	o.mu.Unlock()
}

func (o *StreamOutput) newMark() (string, chan bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	name := fmt.Sprintf("reply-%d", o.seq)
	ch := make(chan bool, 1)
	o.pending[name] = ch
	return name, ch
}

func (o *StreamOutput) dropMark(name string) {
	o.mu.Lock()
	delete(o.pending, name)
	o.mu.Unlock()
}

func (o *StreamOutput) releaseLocked(played bool) {
	for name, ch := range o.pending {
		ch <- played
		delete(o.pending, name)
	}
}
