package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulawSilenceDecodesToZero(t *testing.T) {
	assert.Equal(t, int16(0), mulawTable[0xFF])
	assert.Equal(t, int16(0), mulawTable[0x7F])
}

func TestMulawRoundTrip(t *testing.T) {
	for _, v := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 20000, -20000, 32000} {
		got := mulawTable[linearToMulaw(v)]
		diff := math.Abs(float64(got) - float64(v))
		limit := math.Abs(float64(v))/16 + 8
		assert.LessOrEqualf(t, diff, limit, "sample %d decoded as %d", v, got)
	}
}

func TestEncodeMulawLength(t *testing.T) {
	pcm := make([]byte, 320)
	out := EncodeMulaw(pcm)
	assert.Len(t, out, 160)
	for _, b := range out {
		assert.Equal(t, int16(0), mulawTable[b])
	}
}

func TestDecoderPCM16Passthrough(t *testing.T) {
	d := NewDecoder(16000)
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm, uint16(16384))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(0x8000)) // -32768

	got, err := d.Decode(Chunk{Payload: pcm, Encoding: Encoding{Format: FormatPCM16, SampleRate: 16000, Channels: 1}})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1}, got)
}

func TestDecoderDownmixesStereo(t *testing.T) {
	d := NewDecoder(8000)
	p := make([]byte, 8)
	binary.LittleEndian.PutUint32(p, math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(p[4:], math.Float32bits(-0.25))

	got, err := d.Decode(Chunk{Payload: p, Encoding: Encoding{Format: FormatFloat32, SampleRate: 8000, Channels: 2}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.125, got[0], 1e-6)
}

func TestDecoderRejectsMalformed(t *testing.T) {
	d := NewDecoder(16000)
	tests := []struct {
		name  string
		chunk Chunk
	}{
		{"odd pcm16", Chunk{Payload: []byte{0, 1, 2}, Encoding: Encoding{Format: FormatPCM16, SampleRate: 16000, Channels: 1}}},
		{"partial stereo frame", Chunk{Payload: []byte{0, 1}, Encoding: Encoding{Format: FormatPCM16, SampleRate: 16000, Channels: 2}}},
		{"unknown format", Chunk{Payload: []byte{0, 1}, Encoding: Encoding{Format: "opus", SampleRate: 16000, Channels: 1}}},
		{"zero rate", Chunk{Payload: []byte{0xFF}, Encoding: Encoding{Format: FormatMulaw, Channels: 1}}},
		{"nan sample", Chunk{Payload: binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(math.NaN()))), Encoding: Encoding{Format: FormatFloat32, SampleRate: 16000, Channels: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.chunk)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedChunk))
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	wav := EncodeWAV(pcm, 8000)
	require.Len(t, wav, 44+len(pcm))

	chunk, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, pcm, chunk.Payload)
	assert.Equal(t, Encoding{Format: FormatPCM16, SampleRate: 8000, Channels: 1}, chunk.Encoding)

	_, err = DecodeWAV([]byte("not a wav file at all"))
	assert.Error(t, err)
}

func TestRingKeepsNewestSamples(t *testing.T) {
	r := newRing(4)
	r.Write([]float32{1, 2, 3})
	r.Write([]float32{4, 5})
	assert.True(t, r.Full())
	assert.Equal(t, []float32{2, 3, 4, 5}, r.Snapshot())
	assert.Equal(t, []float32{4, 5}, r.Tail(2))

	r.Write([]float32{6, 7, 8, 9, 10, 11})
	assert.Equal(t, []float32{8, 9, 10, 11}, r.Snapshot())
	assert.Equal(t, int64(11), r.Written())

	r.Reset()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Snapshot())
}
