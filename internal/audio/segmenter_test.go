package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 16000

var pcm16Mono = Encoding{Format: FormatPCM16, SampleRate: testRate, Channels: 1}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func speech(d time.Duration) Chunk {
	n := int(int64(d) * testRate / int64(time.Second))
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/testRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return Chunk{Payload: pcm, Encoding: pcm16Mono}
}

func silence(d time.Duration) Chunk {
	n := int(int64(d) * testRate / int64(time.Second))
	return Chunk{Payload: make([]byte, n*2), Encoding: pcm16Mono}
}

type step struct {
	chunk Chunk
	count int
}

// feed ingests the steps in order and returns every emission with the index
// of the chunk that produced it.
func feed(s *Segmenter, steps ...step) (map[int]*Utterance, int) {
	out := map[int]*Utterance{}
	i := 0
	for _, st := range steps {
		for j := 0; j < st.count; j++ {
			i++
			if u := s.Ingest(st.chunk); u != nil {
				out[i] = u
			}
		}
	}
	return out, i
}

func TestSegmenterEmitsAfterTrailingSilence(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterConfig(), quietLogger())

	got, _ := feed(s,
		step{speech(100 * time.Millisecond), 10},
		step{silence(100 * time.Millisecond), 10},
	)

	require.Len(t, got, 1)
	u, ok := got[20]
	require.True(t, ok, "emission should happen on the tenth silent chunk")
	assert.Len(t, u.Samples, 32000)
	assert.Equal(t, int64(1), u.Seq)
	assert.Equal(t, 2*time.Second, u.Duration())
	assert.Equal(t, time.Duration(0), s.Buffered())
}

func TestSegmenterDiscardsSilenceOnly(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterConfig(), quietLogger())

	got, _ := feed(s, step{silence(100 * time.Millisecond), 20})

	assert.Empty(t, got)
	assert.Equal(t, time.Duration(0), s.Buffered())
	assert.Equal(t, int64(2), s.Discarded())
}

func TestSegmenterShortPausesDoNotSplit(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterConfig(), quietLogger())

	got, n := feed(s,
		step{speech(100 * time.Millisecond), 5},
		step{silence(100 * time.Millisecond), 5},
		step{speech(100 * time.Millisecond), 5},
		step{silence(100 * time.Millisecond), 10},
	)

	require.Len(t, got, 1)
	u := got[n]
	require.NotNil(t, u)
	assert.Len(t, u.Samples, 25*1600)
}

func TestSegmenterConsecutiveUtterances(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterConfig(), quietLogger())

	got, _ := feed(s,
		step{speech(100 * time.Millisecond), 10},
		step{silence(100 * time.Millisecond), 10},
		step{speech(100 * time.Millisecond), 3},
		step{silence(100 * time.Millisecond), 10},
	)

	require.Len(t, got, 2)
	first, second := got[20], got[33]
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Len(t, second.Samples, 13*1600)
	assert.Equal(t, 2*time.Second, second.Offset)
}

func TestSegmenterForcesFlushAtMaxDuration(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MaxBufferDuration = time.Second
	s := NewSegmenter(cfg, quietLogger())

	got, _ := feed(s, step{speech(100 * time.Millisecond), 25})

	require.Len(t, got, 2)
	require.NotNil(t, got[10])
	require.NotNil(t, got[20])
	assert.Len(t, got[10].Samples, testRate)
	assert.Equal(t, 500*time.Millisecond, s.Buffered())
}

func TestSegmenterOversizedChunkKeepsTail(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MaxBufferDuration = time.Second
	s := NewSegmenter(cfg, quietLogger())

	u := s.Ingest(speech(2500 * time.Millisecond))

	require.NotNil(t, u)
	assert.Len(t, u.Samples, testRate)
	assert.Equal(t, time.Second, s.Buffered())
	assert.LessOrEqual(t, s.Buffered(), cfg.MaxBufferDuration)
}

func TestSegmenterDropsMalformedChunks(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterConfig(), quietLogger())

	assert.Nil(t, s.Ingest(Chunk{Payload: []byte{1, 2, 3}, Encoding: pcm16Mono}))
	assert.Nil(t, s.Ingest(Chunk{Payload: []byte{1, 2}, Encoding: Encoding{Format: "opus", SampleRate: 48000, Channels: 1}}))
	assert.Equal(t, int64(2), s.Dropped())

	got, _ := feed(s,
		step{speech(100 * time.Millisecond), 10},
		step{silence(100 * time.Millisecond), 10},
	)
	assert.Len(t, got, 1)
}

func TestSegmenterEmptyPayloadIsNoop(t *testing.T) {
	s := NewSegmenter(DefaultSegmenterConfig(), quietLogger())

	assert.Nil(t, s.Ingest(Chunk{Encoding: pcm16Mono}))
	assert.Zero(t, s.Dropped())
	assert.Zero(t, s.Buffered())
}
