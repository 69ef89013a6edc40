package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps mono PCM16 samples in a 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	dataSize := uint32(len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)
	return buf.Bytes()
}

var errNotWAV = errors.New("not a PCM16 WAV file")

// DecodeWAV extracts the data chunk and encoding of a PCM16 WAV file.
func DecodeWAV(data []byte) (Chunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Chunk{}, errNotWAV
	}
	var (
		enc     Encoding
		haveFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4:]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Chunk{}, errNotWAV
			}
			if binary.LittleEndian.Uint16(data[body:]) != 1 || binary.LittleEndian.Uint16(data[body+14:]) != 16 {
				return Chunk{}, fmt.Errorf("%w: only 16-bit PCM is supported", errNotWAV)
			}
			enc = Encoding{
				Format:     FormatPCM16,
				Channels:   int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate: int(binary.LittleEndian.Uint32(data[body+4:])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Chunk{}, errNotWAV
			}
			return Chunk{Payload: data[body : body+size], Encoding: enc}, nil
		}
		off = body + size + size%2
	}
	return Chunk{}, errNotWAV
}
