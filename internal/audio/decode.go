package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	mulawBias = 0x84
	mulawClip = 32635
)

var mulawTable [256]int16

func init() {
	for i := range mulawTable {
		mulawTable[i] = mulawToLinear(byte(i))
	}
}

func mulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := ((int32(mantissa) << 3) + mulawBias) << exponent
	sample -= mulawBias
	if sign != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func linearToMulaw(s int16) byte {
	sample := int32(s)
	sign := byte(0)
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > mulawClip {
		sample = mulawClip
	}
	sample += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); sample&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((sample >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// EncodeMulaw converts PCM16 little-endian samples to G.711 mu-law.
func EncodeMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		out[i] = linearToMulaw(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// Decoder normalizes chunks of any supported encoding to mono float32 at a
// fixed rate. A Decoder keeps resampler state between chunks and belongs to a
// single call.
type Decoder struct {
	rate int

	srcRate   int
	resampler resampling.Resampler
}

func NewDecoder(rate int) *Decoder {
	return &Decoder{rate: rate}
}

// Decode returns the chunk as mono samples at the decoder rate. Malformed
// chunks yield an error wrapping ErrMalformedChunk.
func (d *Decoder) Decode(c Chunk) ([]float32, error) {
	enc := c.Encoding
	if err := enc.validate(); err != nil {
		return nil, err
	}
	if len(c.Payload) == 0 {
		return nil, nil
	}
	frame := enc.bytesPerSample() * enc.Channels
	if len(c.Payload)%frame != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of frame size %d", ErrMalformedChunk, len(c.Payload), frame)
	}

	interleaved, err := decodeSamples(c.Payload, enc.Format)
	if err != nil {
		return nil, err
	}
	mono := downmix(interleaved, enc.Channels)

	if enc.SampleRate == d.rate {
		return mono, nil
	}
	return d.resample(mono, enc.SampleRate)
}

func (d *Decoder) resample(in []float32, srcRate int) ([]float32, error) {
	if d.resampler == nil || d.srcRate != srcRate {
		r, err := newResampler(srcRate, d.rate)
		if err != nil {
			return nil, err
		}
		d.resampler = r
		d.srcRate = srcRate
	}
	input := make([]float64, len(in))
	for i, s := range in {
		input[i] = float64(s)
	}
	output, err := d.resampler.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", srcRate, d.rate, err)
	}
	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}

func newResampler(from, to int) (resampling.Resampler, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	return r, nil
}

// ResamplePCM16 converts a whole mono PCM16 buffer from one rate to another.
func ResamplePCM16(pcm []byte, from, to int) ([]byte, error) {
	if from == to {
		return pcm, nil
	}
	r, err := newResampler(from, to)
	if err != nil {
		return nil, err
	}
	samples := pcm16ToFloat(pcm)
	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d->%d: %w", from, to, err)
	}
	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return floatToPCM16(out), nil
}

func decodeSamples(p []byte, f Format) ([]float32, error) {
	switch f {
	case FormatMulaw:
		out := make([]float32, len(p))
		for i, b := range p {
			out[i] = float32(mulawTable[b]) / 32768
		}
		return out, nil
	case FormatPCM16:
		return pcm16ToFloat(p), nil
	case FormatFloat32:
		out := make([]float32, len(p)/4)
		for i := range out {
			v := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("%w: non-finite sample at %d", ErrMalformedChunk, i)
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", ErrMalformedChunk, f)
}

func downmix(in []float32, channels int) []float32 {
	if channels == 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += in[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func pcm16ToFloat(p []byte) []float32 {
	out := make([]float32, len(p)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(p[i*2:]))) / 32768
	}
	return out
}

func floatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		var v int16
		switch {
		case s >= 1:
			v = math.MaxInt16
		case s <= -1:
			v = math.MinInt16
		default:
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
