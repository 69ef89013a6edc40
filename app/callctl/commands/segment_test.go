package commands

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/callgate/internal/audio"
)

func pcm16(rate int, spans ...struct {
	d    time.Duration
	tone bool
}) []byte {
	var out []byte
	for _, s := range spans {
		n := int(int64(rate) * int64(s.d) / int64(time.Second))
		for i := 0; i < n; i++ {
			var v int16
			if s.tone {
				v = int16(0.3 * 32767 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
	}
	return out
}

func TestSegmentRecording(t *testing.T) {
	type span = struct {
		d    time.Duration
		tone bool
	}
	pcm := pcm16(16000,
		span{time.Second, true},
		span{1500 * time.Millisecond, false},
		span{time.Second, true},
		span{1500 * time.Millisecond, false},
	)
	wav := audio.EncodeWAV(pcm, 16000)
	rec, err := audio.DecodeWAV(wav)
	require.NoError(t, err)

	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	got, seg, err := segmentRecording(rec, audio.DefaultSegmenterConfig(), 20*time.Millisecond, quiet)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(0), got[0].OffsetMS)
	assert.Equal(t, int64(2000), got[0].DurationMS)
	assert.Equal(t, int64(2000), got[1].OffsetMS)
	assert.Equal(t, int64(2500), got[1].DurationMS)
	assert.Greater(t, got[0].RMS, 0.1)
	assert.NotEmpty(t, got[0].wav)

	assert.Equal(t, 500*time.Millisecond, seg.Buffered())
	assert.Zero(t, seg.Dropped())
}

func TestSegmentRecordingRejectsMissingFormat(t *testing.T) {
	_, _, err := segmentRecording(audio.Chunk{Payload: []byte{0, 0}}, audio.DefaultSegmenterConfig(), 0, logrus.New())
	assert.Error(t, err)
}
